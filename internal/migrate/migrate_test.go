package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/outpostml/dvc/internal/commitdb"
	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenameVersionedFilesMigrationIsIdempotent(t *testing.T) {
	repo := t.TempDir()
	dir := filepath.Join(repo, "versions", "ab", "cdef")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	legacy := filepath.Join(dir, "commit123.csv")
	require.NoError(t, os.WriteFile(legacy, []byte("x"), 0o644))

	m := RenameVersionedFilesMigration{}
	ctx := context.Background()

	needed, err := m.IsNeeded(ctx, repo)
	require.NoError(t, err)
	assert.True(t, needed)

	require.NoError(t, m.Up(ctx, repo))

	_, err = os.Stat(filepath.Join(dir, "data.csv"))
	require.NoError(t, err)
	_, err = os.Stat(legacy)
	assert.True(t, os.IsNotExist(err))

	needed, err = m.IsNeeded(ctx, repo)
	require.NoError(t, err)
	assert.False(t, needed)

	// Second Up is a no-op, not an error.
	require.NoError(t, m.Up(ctx, repo))
}

// failingMigration is always needed and always fails Up, so RunAll's
// continue-on-error path is exercised.
type failingMigration struct{ attempted *[]string }

func (failingMigration) Name() string { return "always_fails" }

func (failingMigration) IsNeeded(ctx context.Context, repoRoot string) (bool, error) {
	return true, nil
}

func (m failingMigration) Up(ctx context.Context, repoRoot string) error {
	*m.attempted = append(*m.attempted, repoRoot)
	return errors.New("boom")
}

func (failingMigration) Down(ctx context.Context, repoRoot string) error { return nil }

func TestRegistryRunAllContinuesPastFailure(t *testing.T) {
	log := zap.NewNop().Sugar()
	var attempted []string
	reg := NewRegistry(log, failingMigration{attempted: &attempted}, RenameVersionedFilesMigration{})

	namespace := t.TempDir()
	repoA := filepath.Join(namespace, "a")
	repoB := filepath.Join(namespace, "b")
	require.NoError(t, os.MkdirAll(repoA, 0o755))
	require.NoError(t, os.MkdirAll(repoB, 0o755))

	err := reg.RunAll(context.Background(), namespace, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{repoA, repoB}, attempted)
}

func TestBuildMerkleTreesMigrationBuildsMissingTreesAndIsIdempotent(t *testing.T) {
	repoRoot := t.TempDir()
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	commitsStore, err := kv.Open(filepath.Join(repoRoot, "commits"), kv.ReadWrite, log)
	require.NoError(t, err)
	parentsStore, err := kv.Open(filepath.Join(repoRoot, "parents"), kv.ReadWrite, log)
	require.NoError(t, err)
	commits := commitdb.New(commitsStore, parentsStore)

	c := commitdb.NewCommit(nil, "alice", "initial", time.Unix(100, 0), nil, "")
	require.NoError(t, commits.Put(ctx, c))

	historyStore, err := kv.Open(filepath.Join(repoRoot, "history", c.ID, "dirs"), kv.ReadWrite, log)
	require.NoError(t, err)
	require.NoError(t, entryindex.NewWriter(historyStore).WriteAll(ctx, []entryindex.CommitEntry{{Path: "a.csv", Hash: "ha"}}))
	require.NoError(t, historyStore.Close())
	require.NoError(t, commitsStore.Close())
	require.NoError(t, parentsStore.Close())

	m := BuildMerkleTreesMigration{Workers: 2, Log: log}

	needed, err := m.IsNeeded(ctx, repoRoot)
	require.NoError(t, err)
	assert.True(t, needed)

	require.NoError(t, m.Up(ctx, repoRoot))

	needed, err = m.IsNeeded(ctx, repoRoot)
	require.NoError(t, err)
	assert.False(t, needed)

	// Second Up is a no-op, not an error.
	require.NoError(t, m.Up(ctx, repoRoot))

	treeStore, err := kv.Open(filepath.Join(repoRoot, "history", c.ID, "tree"), kv.ReadWrite, log)
	require.NoError(t, err)
	root, err := treeStore.Get(ctx, []byte("root"))
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	require.NoError(t, treeStore.Close())

	require.NoError(t, m.Down(ctx, repoRoot))
	needed, err = m.IsNeeded(ctx, repoRoot)
	require.NoError(t, err)
	assert.True(t, needed)
}
