package bridge

import "errors"

// Sentinel errors returned by Send. Callers classify failures with
// errors.Is; none of these are retried automatically by the bridge.
var (
	// ErrTransportUnavailable indicates the agent process could not be
	// started or written to.
	ErrTransportUnavailable = errors.New("agent transport unavailable")

	// ErrTimeout indicates no response arrived within the request timeout.
	ErrTimeout = errors.New("agent request timed out")

	// ErrProcessExited indicates the agent process terminated while the
	// request was outstanding.
	ErrProcessExited = errors.New("agent process exited")
)

// BackendError carries an error string the agent reported explicitly in an
// ok=false response.
type BackendError struct {
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return "agent error: " + e.Message
}
