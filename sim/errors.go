package sim

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel matched by every *ConfigError.
var ErrConfig = errors.New("config error")

// Causes carried by ConfigError.Err.
var (
	ErrUnknownModel    = errors.New("unknown model")
	ErrMissingParam    = errors.New("missing required parameter")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrInvalidState    = errors.New("invalid lifecycle state")
	ErrDuplicateID     = errors.New("duplicate identifier")
	ErrUnknownNode     = errors.New("unknown node")
	ErrUnknownVariable = errors.New("unknown variable")
	ErrInvalidValue    = errors.New("invalid value")
)

// ConfigError reports missing or incompatible configuration. It is always
// raised during setup, before the first round executes.
type ConfigError struct {
	Subject string // component model, node id or LPU id the error refers to
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Subject, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfig) true for any *ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError builds a ConfigError whose message wraps cause.
func NewConfigError(subject string, cause error, format string, args ...any) *ConfigError {
	return &ConfigError{Subject: subject, Err: fmt.Errorf("%w: "+format, append([]any{cause}, args...)...)}
}
