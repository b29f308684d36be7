package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
	"github.com/felixgeelhaar/catalogd/internal/domain/remotesync"
	"github.com/felixgeelhaar/catalogd/internal/testutil"
)

var _ remotesync.Store = (*RemoteTable)(nil)

func TestRemoteTable_LoadMissing(t *testing.T) {
	t.Parallel()

	rows, err := InDir(t.TempDir()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestRemoteTable_ReplaceAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := InDir(filepath.Join(t.TempDir(), "nested"))
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	table.now = func() time.Time { return fixed }

	first := []catalog.Remote{testutil.Remote("a", 1), testutil.Remote("b", 2)}
	require.NoError(t, table.ReplaceAll(ctx, first))

	second := []catalog.Remote{{PkgName: "c", Name: "C", Lang: "fr", VersionName: "1.1", VersionCode: 3, Nsfw: true}}
	require.NoError(t, table.ReplaceAll(ctx, second))

	rows, err := table.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, rows)

	syncedAt, err := table.SyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(syncedAt))

	entries, err := os.ReadDir(filepath.Dir(table.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestRemoteTable_CancelledBeforeCommit(t *testing.T) {
	t.Parallel()

	table := InDir(t.TempDir())
	prior := []catalog.Remote{testutil.Remote("a", 1)}
	require.NoError(t, table.ReplaceAll(context.Background(), prior))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := table.ReplaceAll(ctx, []catalog.Remote{testutil.Remote("b", 1)})
	assert.ErrorIs(t, err, context.Canceled)

	rows, err := table.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, prior, rows)
}

func TestRemoteTable_Corrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTempFile(t, dir, FileName, "catalogs: [unterminated")

	_, err := InDir(dir).Load(context.Background())
	assert.ErrorIs(t, err, ErrTableCorrupt)

	testutil.WriteTempFile(t, dir, FileName, "version: 9\ncatalogs: []\n")
	_, err = InDir(dir).Load(context.Background())
	assert.ErrorIs(t, err, ErrTableCorrupt)
}
