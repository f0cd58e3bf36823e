package vision

import "fmt"

// ConfigurationError indicates the client or a caller was set up wrong:
// a missing credential, an unknown chat mode. Fatal, never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// APIError is a non-success HTTP response from the model endpoint.
// Body carries the raw response body for diagnostics; callers surfacing
// the error to users should expose the status code only.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vision API error %d: %s", e.StatusCode, e.Body)
}

// TransportError is a connection-level failure: timeout, refused
// connection, or a broken stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vision transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
