package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/observability"
)

// PanicError is returned when a task panics
type PanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Run executes fn with a timeout derived from parent. A panic inside fn is
// recovered and returned as a *PanicError.
func Run(parent context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: taskName, Value: r, Stack: debug.Stack()}
		}
	}()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", taskName, err)
	}
	return nil
}

// SafeGo runs fn in a goroutine through Run. Failures are logged; the returned
// channel receives the result and is then closed.
func SafeGo(parent context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)

		err := Run(parent, timeout, taskName, fn)
		if err != nil {
			entry := logger.WithError(err).WithField("task", taskName)
			if p, ok := err.(*PanicError); ok {
				entry = entry.WithField("stack", string(p.Stack))
			}
			entry.Error("background task failed")
		}
		done <- err
	}()
	return done
}
