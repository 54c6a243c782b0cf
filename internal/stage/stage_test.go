package stage

import (
	"context"
	"testing"

	"github.com/outpostml/dvc/internal/commitdb"
	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/merkle"
	"github.com/outpostml/dvc/internal/objectdb"
	"github.com/outpostml/dvc/internal/refstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStager(t *testing.T) (*Stager, *commitdb.DB, *refstore.Store) {
	commits := commitdb.New(kv.NewMemStore(), kv.NewMemStore())
	refs := refstore.New(t.TempDir())
	require.NoError(t, refs.InitializeHead("main"))

	objects := objectdb.New(kv.NewMemStore(), kv.NewMemStore(), kv.NewMemStore(), kv.NewMemStore())
	builder := merkle.NewBuilder(objects, 2)

	history := make(map[string][]entryindex.CommitEntry)
	headReads := func(ctx context.Context, commitID string) ([]entryindex.CommitEntry, error) {
		return history[commitID], nil
	}

	newStore := func(dirPath string) (kv.Store, error) {
		return kv.NewMemStore(), nil
	}

	s := New(newStore, commits, refs, builder, headReads)
	return s, commits, refs
}

func TestAddThenCommitAdvancesHead(t *testing.T) {
	s, _, refs := newTestStager(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "data/a.csv", "hashA", 10))
	require.NoError(t, s.Add(ctx, "data/b.csv", "hashB", 20))

	commit, _, err := s.Commit(ctx, "first commit", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, commit.ID)

	head, err := refs.Head()
	require.NoError(t, err)
	assert.Equal(t, commit.ID, head.CommitID)
}

func TestCommitWithNothingStagedFails(t *testing.T) {
	s, _, _ := newTestStager(t)
	_, _, err := s.Commit(context.Background(), "empty", "alice")
	require.Error(t, err)
}

func TestSecondAddToSamePathIsModified(t *testing.T) {
	s, _, _ := newTestStager(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "a.csv", "h1", 1))
	require.NoError(t, s.Add(ctx, "a.csv", "h2", 2))

	staged, err := s.ListStaged(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, StatusModified, staged[0].Status)
	assert.Equal(t, "h2", staged[0].Hash)
}

func TestCommitClearsStagingArea(t *testing.T) {
	s, _, _ := newTestStager(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "a.csv", "h1", 1))
	_, _, err := s.Commit(ctx, "msg", "alice")
	require.NoError(t, err)

	staged, err := s.ListStaged(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestRemoveStagesRemoval(t *testing.T) {
	s, _, _ := newTestStager(t)
	ctx := context.Background()

	require.NoError(t, s.Remove(ctx, "a.csv"))
	staged, err := s.ListStaged(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, StatusRemoved, staged[0].Status)
}
