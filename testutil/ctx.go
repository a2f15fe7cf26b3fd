package testutil

import (
	"context"
	"testing"
	"time"
)

// Context returns a context canceled when the test ends or the timeout
// elapses, whichever comes first.
func Context(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
