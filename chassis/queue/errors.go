package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueResolution is matched by every ResolutionError.
	ErrQueueResolution = errors.New("queue resolution failed")
	ErrSend            = errors.New("send message failed")
	ErrReceive         = errors.New("receive message failed")
	ErrDelete          = errors.New("delete message failed")
)

// ResolutionError is returned when a queue name cannot be resolved to a handle.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve queue %q: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is reports ErrQueueResolution as a match.
func (e *ResolutionError) Is(target error) bool { return target == ErrQueueResolution }

// OpError wraps a failed send, receive or delete call.
type OpError struct {
	Op     error
	Handle Handle
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Op, e.Handle, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is matches the operation sentinel (ErrSend, ErrReceive, ErrDelete).
func (e *OpError) Is(target error) bool { return target == e.Op }

func opError(op error, handle Handle, err error) error {
	return &OpError{Op: op, Handle: handle, Err: err}
}
