package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed marketplace call. The engine branches on Kind
// instead of inspecting error text.
type Kind int

const (
	// KindTransient covers network errors, 5xx responses and an open
	// circuit breaker. Local state stays authoritative; the next sync
	// retries naturally.
	KindTransient Kind = iota
	// KindAuth covers missing, expired or rejected credentials.
	KindAuth
	// KindNotFound means the remote line no longer exists.
	KindNotFound
	// KindValidation covers the remaining 4xx rejections.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// Error is the structured failure returned by every client operation.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("remote %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindAuth
}

// KindOf extracts the Kind from err, defaulting to KindTransient for
// anything that is not a remote.Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

func kindFromStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindTransient
	}
}
