package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/config"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/registry"
	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "plain error",
			err:      errors.New("boom"),
			contains: []string{"boom"},
		},
		{
			name:     "user error",
			err:      fmt.Errorf("load: %w", config.NewConfigNotFoundError("missing.yaml")),
			contains: []string{"configuration file not found", "(at missing.yaml)", "Suggestion:"},
		},
		{
			name: "validation errors",
			err: func() error {
				cfg := config.Default()
				cfg.Log.Format = "xml"
				return cfg.Validate()
			}(),
			contains: []string{"invalid configuration (1)", "log.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printErrorTo(&buf, tt.err)
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestPrintCatalogs(t *testing.T) {
	t.Parallel()

	reg := registry.New([]catalog.Internal{{Source: testutil.NewSource(-1, "Bundled", "all")}})
	t.Cleanup(func() { _ = reg.Close() })

	current := testutil.Installed("com.example.current", 1, 3)
	current.Name = "Current"
	stale := testutil.Installed("com.example.stale", 2, 1)
	stale.Name = "Stale"
	reg.SetInstalled([]catalog.Installed{current, stale})
	reg.SetRemote([]catalog.Remote{
		testutil.Remote("com.example.current", 3),
		testutil.Remote("com.example.stale", 2),
	})

	var buf bytes.Buffer
	printCatalogs(&buf, reg, listOptions{remote: true})
	out := buf.String()
	assert.Contains(t, out, "Bundled")
	assert.Contains(t, out, "Current")
	assert.Contains(t, out, "update available")
	assert.Contains(t, out, "Remote")
	assert.Contains(t, out, "Total: 2 installed, 1 update")

	buf.Reset()
	printCatalogs(&buf, reg, listOptions{updates: true})
	out = buf.String()
	assert.Contains(t, out, "Stale")
	assert.NotContains(t, out, "Current")
	assert.NotContains(t, out, "Bundled")

	buf.Reset()
	printCatalogs(&buf, reg, listOptions{lang: "fr"})
	assert.Contains(t, buf.String(), "none")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	require.Contains(t, buf.String(), "catalogd dev")
}

func TestServeAlongside(t *testing.T) {
	t.Run("host failure stops the server", func(t *testing.T) {
		hostErr := errors.New("watch failed")
		err := serveAlongside(context.Background(),
			func(context.Context) error { return hostErr },
			func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			})
		require.ErrorIs(t, err, hostErr)
	})

	t.Run("server exit stops the host", func(t *testing.T) {
		stopped := make(chan struct{})
		err := serveAlongside(context.Background(),
			func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return nil
			},
			func(context.Context) error { return nil })
		require.NoError(t, err)
		testutil.Closed(t, stopped)
	})
}
