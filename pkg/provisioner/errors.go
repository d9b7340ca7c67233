package provisioner

import (
	"errors"
	"fmt"
)

// ExitCodeFatal is the process exit status after a fatal loop condition
const ExitCodeFatal = 70

var (
	// ErrTooManyFailures means consecutive failed sweeps exceeded the threshold
	ErrTooManyFailures = errors.New("too many consecutive sweep failures")

	// ErrWatchdogExpired means a sweep ran past the watchdog window
	ErrWatchdogExpired = errors.New("watchdog expired")

	// ErrAlreadyRunning is returned by Run on a loop that is already running
	ErrAlreadyRunning = errors.New("loop is already running")
)

// FatalError is returned by Loop.Run when the process must not continue.
// A hard exit has already been scheduled when it is returned.
type FatalError struct {
	Reason              error
	ConsecutiveFailures int
	LastErr             error
}

func (e *FatalError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("fatal: %v after %d consecutive failures: last error: %v", e.Reason, e.ConsecutiveFailures, e.LastErr)
	}
	return fmt.Sprintf("fatal: %v", e.Reason)
}

func (e *FatalError) Unwrap() error {
	return e.Reason
}
