package pattern

import (
	"errors"
	"fmt"
)

// ErrRouting is the sentinel matched by every *RoutingError.
var ErrRouting = errors.New("routing error")

// Causes carried by RoutingError.Err.
var (
	ErrUnknownPort       = errors.New("unknown port")
	ErrSameInterface     = errors.New("source and destination in the same interface")
	ErrOverlap           = errors.New("interface selectors overlap")
	ErrDirectionConflict = errors.New("port used as both source and destination")
	ErrKindMismatch      = errors.New("port kinds differ")
	ErrInvalidAttribute  = errors.New("invalid attribute value")
	ErrShapeMismatch     = errors.New("selector sizes cannot be paired")
	ErrMultipleSources   = errors.New("destination port has more than one source")
	ErrAlreadyConnected  = errors.New("pattern already connected")
)

// RoutingError reports a reference to a port that is not where the caller
// declared it, or connectivity that cannot be routed.
type RoutingError struct {
	Op   string
	Port string
	Err  error
}

func (e *RoutingError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRouting) true for any *RoutingError.
func (e *RoutingError) Is(target error) bool {
	return target == ErrRouting
}
