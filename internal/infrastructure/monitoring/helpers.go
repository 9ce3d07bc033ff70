package monitoring

import "time"

// Session lifecycle hooks. All of them are safe on a nil *Metrics so callers
// can run without monitoring.

// SetSessionsActive sets the number of registered sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordSessionStart counts a start attempt; outcome is "ok" or a failure class
func (m *Metrics) RecordSessionStart(outcome string) {
	if m == nil {
		return
	}
	m.SessionStarts.WithLabelValues(outcome).Inc()
	if outcome != "ok" {
		m.mu.Lock()
		m.snapshot.FailedStarts++
		m.mu.Unlock()
	}
}

// RecordSessionStop counts a stopped session by reason ("request", "idle", "shutdown")
func (m *Metrics) RecordSessionStop(reason string) {
	if m == nil {
		return
	}
	m.SessionStops.WithLabelValues(reason).Inc()
}

// SetBreakerState publishes the launch breaker state
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// RecordExchange records one finished exchange
func (m *Metrics) RecordExchange(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(result).Inc()
	m.ExchangeDuration.Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.Exchanges++
	m.mu.Unlock()
}

// IncStreamDeltas counts one streamed delta
func (m *Metrics) IncStreamDeltas() {
	if m == nil {
		return
	}
	m.StreamDeltas.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveWS++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveWS--
	m.mu.Unlock()
}

// GetSnapshot returns the running totals
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
