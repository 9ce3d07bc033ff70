package conversation

import "errors"

// SessionErrorText is the reply text handed to HTTP callers when an exchange fails.
const SessionErrorText = "❌ Session error: likely expired or not authenticated."

// Start errors
var (
	ErrNotReady       = errors.New("chat page not ready")
	ErrAuthRequired   = errors.New("login required: session expired or not authenticated")
	ErrLoginFailed    = errors.New("interactive login failed")
	ErrUnexpectedPage = errors.New("unexpected page title")
	ErrAlreadyStarted = errors.New("session already started")
	ErrStateNotSaved  = errors.New("auth state not saved")
)

// Exchange errors
var (
	ErrInputNotFound = errors.New("input field not found: session may have expired or not authenticated")
	ErrSessionClosed = errors.New("session is not running")
)

// ResultKind classifies an exchange outcome.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultTransportError
	ResultNotAuthenticated
)

// String returns the wire name of the kind
func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultTransportError:
		return "transport_error"
	case ResultNotAuthenticated:
		return "not_authenticated"
	default:
		return "unknown"
	}
}

// Result is the outcome of one exchange. Failed results carry SessionErrorText
// in Text so callers that only look at the text still see a readable reply.
type Result struct {
	Kind ResultKind
	Text string
	HTML string
	Err  error
}

// OK reports whether the reply was captured.
func (r Result) OK() bool {
	return r.Kind == ResultOK
}

func success(text string) Result {
	return Result{Kind: ResultOK, Text: text}
}

func failure(err error) Result {
	kind := ResultTransportError
	if errors.Is(err, ErrInputNotFound) {
		kind = ResultNotAuthenticated
	}
	return Result{Kind: kind, Text: SessionErrorText, Err: err}
}
