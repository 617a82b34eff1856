package observability

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Shutdown closes long-lived resources (cache connections, etc.) and then flushes logs.
// Every closer is attempted; failures are joined. Call after in-flight requests drain.
func Shutdown(logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
