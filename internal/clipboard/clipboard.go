package clipboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

var (
	ErrUnavailable = errors.New("clipboard tool not found")
	ErrEmpty       = errors.New("nothing to copy")
)

// Overridden in tests.
var (
	writeAll    = clipboard.WriteAll
	unsupported = func() bool { return clipboard.Unsupported }
)

// Copy places text on the system clipboard. The helper process is abandoned
// once ctx is done.
func Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if unsupported() {
		return ErrUnavailable
	}

	write := writeAll
	done := make(chan error, 1)
	go func() {
		done <- write(text)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("write clipboard: %w", ctx.Err())
	}
}
