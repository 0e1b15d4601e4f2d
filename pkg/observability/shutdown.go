package observability

import (
	"context"
	"errors"
	"fmt"
)

// ShutdownFunc releases a resource during shutdown
type ShutdownFunc func(context.Context) error

// Shutdown runs the functions in reverse registration order, logging and
// collecting failures. Every function runs even when an earlier one fails.
func Shutdown(ctx context.Context, logger *Logger, funcs ...ShutdownFunc) error {
	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			logger.WithError(err).Errorf("shutdown step %d failed", i)
			errs = append(errs, fmt.Errorf("shutdown step %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("graceful shutdown complete")
	return nil
}
