package transport

import "fmt"

// ErrorKind classifies a transport failure after retries are exhausted.
type ErrorKind int

const (
	// KindNetwork covers connection resets, refused connections and DNS errors.
	KindNetwork ErrorKind = iota
	// KindTLS covers handshake and certificate failures.
	KindTLS
	// KindTimeout covers deadline and context expiry.
	KindTimeout
	// KindStatus covers HTTP responses that were never accepted.
	KindStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTLS:
		return "tls"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error is returned when a call fails for good. Callers map it to a
// user-visible fallback message; Status is zero unless Kind is KindStatus.
type Error struct {
	Kind     ErrorKind
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("transport: %s %d after %d attempts", e.Kind, e.Status, e.Attempts)
	}
	return fmt.Sprintf("transport: %s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
