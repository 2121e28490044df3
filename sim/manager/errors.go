package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrCommunication is matched by every *CommunicationFault.
	ErrCommunication = errors.New("communication fault")
	// ErrFatal is matched by every *FatalError.
	ErrFatal = errors.New("fatal simulation error")
	// ErrRoundTimeout is the cause of a FatalError raised when a barrier
	// waits longer than Config.RoundTimeout.
	ErrRoundTimeout = errors.New("round timed out")
)

// CommunicationFault is a transient failure to deliver routed values. The
// manager retries it up to Config.MaxRetries times.
type CommunicationFault struct {
	LPU   string // destination
	Round int
	Err   error
}

func (e *CommunicationFault) Error() string {
	return fmt.Sprintf("lpu %s round %d: communication fault: %v", e.LPU, e.Round, e.Err)
}

func (e *CommunicationFault) Unwrap() error { return e.Err }

func (e *CommunicationFault) Is(target error) bool { return target == ErrCommunication }

// FatalError ends the whole run. LPU is empty when the fault is not tied to
// one LPU (e.g. a barrier timeout).
type FatalError struct {
	LPU   string
	Round int
	Err   error
}

func (e *FatalError) Error() string {
	if e.LPU == "" {
		return fmt.Sprintf("fatal at round %d: %v", e.Round, e.Err)
	}
	return fmt.Sprintf("lpu %s fatal at round %d: %v", e.LPU, e.Round, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool { return target == ErrFatal }
