// Package testutil provides builders, fakes and helpers shared by catalogd tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking receive in tests.
const DefaultTimeout = 2 * time.Second

// WriteTempFile writes content to a file in dir, creating parent directories.
func WriteTempFile(t testing.TB, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "failed to write temp file: %s", filename)

	return path
}

// Receive waits for one value on ch.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(DefaultTimeout):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}

// NoReceive asserts that nothing arrives on ch within wait.
func NoReceive[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			require.FailNow(t, "unexpected value", "%v", v)
		}
	case <-time.After(wait):
	}
}

// Closed asserts that ch gets closed.
func Closed[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	deadline := time.After(DefaultTimeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for channel close")
		}
	}
}
