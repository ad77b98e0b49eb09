package observability

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FlushTelemetry closes resources that buffer state, then syncs the logger.
// Call during graceful shutdown after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
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
