package observability

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// SyncLogger flushes buffered log entries. Stdout and stderr attached to a
// terminal or pipe reject fsync with EINVAL or ENOTTY; those are not reported.
func SyncLogger(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	err := logger.Sync()
	if err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return fmt.Errorf("flush logs: %w", err)
}
