package broker

import (
	"errors"
	"fmt"
)

// ErrorKind classifies broker failures so callers can decide between skipping
// an instrument for the current cycle and escalating to a reconnect.
type ErrorKind int

const (
	// KindUnknown is the zero value for errors that carry no classification.
	KindUnknown ErrorKind = iota
	// KindUnavailable marks transiently missing data (no quote, no candles,
	// outcome not yet published). Recover by skipping, never by escalating.
	KindUnavailable
	// KindRejected marks a venue-side refusal of an order or request.
	KindRejected
	// KindConnectivity marks transport or session failures. Callers escalate
	// to the reconnect path.
	KindConnectivity
	// KindMalformed marks undecodable or contract-violating venue responses.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindConnectivity:
		return "connectivity"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error wraps a broker failure with its classification and the operation that
// produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("broker: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("broker: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified broker error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the classification from err, or KindUnknown when err is nil
// or carries no broker.Error in its chain.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsUnavailable reports whether err marks transiently missing data.
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsConnectivity reports whether err marks a transport or session failure.
func IsConnectivity(err error) bool { return KindOf(err) == KindConnectivity }
