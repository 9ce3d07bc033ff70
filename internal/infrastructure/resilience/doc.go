/*
Package resilience provides the circuit breaker guarding browser launches.

A breaker is closed while launches succeed. After enough consecutive failures
it opens and rejects calls with ErrCircuitOpen until the cooldown passes. It
then lets a limited number of probe calls through (half-open); their success
closes it again, any failure reopens it.

	Closed --[Trip]--> Open --[Cooldown]--> Half-Open --[probes ok]--> Closed
	                    ^                       |
	                    +-------[failure]-------+

Settings.IsFailure decides which errors count. Session start uses it to ignore
authentication failures, which say nothing about the health of the browser.

# Usage

	breaker := resilience.New("browser-launch", resilience.Settings{
		Cooldown: 30 * time.Second,
		Trip:     resilience.ConsecutiveFailures(3),
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, conversation.ErrAuthRequired)
		},
	})

	err := breaker.Execute(ctx, func(ctx context.Context) error {
		return sess.Start(ctx)
	})
*/
package resilience
