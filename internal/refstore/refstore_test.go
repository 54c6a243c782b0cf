package refstore

import (
	"path/filepath"
	"testing"

	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	return New(t.TempDir())
}

func TestCreateBranchRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateBranch("main", "c1"))

	err := s.CreateBranch("main", "c2")
	require.Error(t, err)
	assert.True(t, oxerr.Is(err, oxerr.KindAlreadyExists))

	got, err := s.GetBranch("main")
	require.NoError(t, err)
	assert.Equal(t, "c1", got)
}

func TestInitializeHeadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitializeHead("main"))
	require.NoError(t, s.InitializeHead("other")) // second call must not override

	head, err := s.Head()
	require.NoError(t, err)
	assert.True(t, head.Attached)
	assert.Equal(t, "main", head.Branch)
}

func TestDeleteBranchRefusesCurrentHeadTarget(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateBranch("main", "c1"))
	require.NoError(t, s.InitializeHead("main"))

	err := s.DeleteBranch("main", false)
	require.Error(t, err)

	require.NoError(t, s.DeleteBranch("main", true))
	assert.False(t, s.BranchExists("main"))
}

func TestDetachedHead(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetHeadToCommit("deadbeef"))

	head, err := s.Head()
	require.NoError(t, err)
	assert.False(t, head.Attached)
	assert.Equal(t, "deadbeef", head.CommitID)
}

func TestAdvanceMovesAttachedBranch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateBranch("main", "c1"))
	require.NoError(t, s.InitializeHead("main"))

	require.NoError(t, s.Advance("c2"))

	got, err := s.GetBranch("main")
	require.NoError(t, err)
	assert.Equal(t, "c2", got)
}

func TestAdvanceMovesDetachedHead(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetHeadToCommit("c1"))
	require.NoError(t, s.Advance("c2"))

	head, err := s.Head()
	require.NoError(t, err)
	assert.False(t, head.Attached)
	assert.Equal(t, "c2", head.CommitID)
}

func TestListBranches(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateBranch("main", "c1"))
	require.NoError(t, s.CreateBranch("dev", "c2"))

	names, err := s.ListBranches()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "dev"}, names)
}

func TestBranchFileIsAtomicallyWritten(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateBranch("main", "c1"))

	// No stray temp files should survive a successful write.
	matches, err := filepath.Glob(filepath.Join(s.refsDir, ".ref-tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
