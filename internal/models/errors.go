package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrInvalidIdentity  = errors.New("invalid worker identity")
	ErrAlreadyPublished = errors.New("rendezvous record already published")
	ErrNotFound         = errors.New("rendezvous record not found")
	ErrPublishConflict  = errors.New("rendezvous name is already in use")
	ErrTimedOut         = errors.New("timed out waiting for rendezvous record")
	ErrDoubleClose      = errors.New("listener already closed")
	ErrTransportFailure = errors.New("transport failure")
	ErrAlreadyComplete  = errors.New("group formation already complete")
	ErrOutOfOrder       = errors.New("worker joined out of order")
)

// OpError is a failed transport operation. Err carries the stack of the
// call site, Site is the file:line that checked the result.
type OpError struct {
	Op     string
	Worker WorkerID
	Site   string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("worker=%d site=%s: call %q failed: %v", e.Worker, e.Site, e.Op, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrTransportFailure, e.Err}
}

// CommCheck turns a transport error into an *OpError. It returns nil for a
// nil err so it can wrap calls inline.
func CommCheck(op string, worker WorkerID, err error) error {
	if err == nil {
		return nil
	}
	site := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		site = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &OpError{
		Op:     op,
		Worker: worker,
		Site:   site,
		Err:    pkgerrors.WithStack(err),
	}
}
