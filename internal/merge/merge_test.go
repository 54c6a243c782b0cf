package merge

import (
	"testing"

	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(path, h string) entryindex.CommitEntry {
	return entryindex.CommitEntry{Path: path, Hash: h}
}

func TestThreeWayCleanFastForwardOurs(t *testing.T) {
	base := []entryindex.CommitEntry{entry("a.csv", "h1")}
	ours := []entryindex.CommitEntry{entry("a.csv", "h2")}
	theirs := []entryindex.CommitEntry{entry("a.csv", "h1")}

	result := ThreeWay(base, ours, theirs)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "h2", result.Entries[0].Hash)
}

func TestThreeWayConflictWhenBothChangeDifferently(t *testing.T) {
	base := []entryindex.CommitEntry{entry("a.csv", "h1")}
	ours := []entryindex.CommitEntry{entry("a.csv", "h2")}
	theirs := []entryindex.CommitEntry{entry("a.csv", "h3")}

	result := ThreeWay(base, ours, theirs)
	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, "a.csv", result.Conflicts[0].Path)
}

func TestThreeWaySameChangeBothSidesIsNotConflict(t *testing.T) {
	base := []entryindex.CommitEntry{entry("a.csv", "h1")}
	ours := []entryindex.CommitEntry{entry("a.csv", "h2")}
	theirs := []entryindex.CommitEntry{entry("a.csv", "h2")}

	result := ThreeWay(base, ours, theirs)
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Entries, 1)
}

func TestThreeWayNewFileOnlyOnTheirs(t *testing.T) {
	result := ThreeWay(nil, nil, []entryindex.CommitEntry{entry("new.csv", "h1")})
	assert.Empty(t, result.Conflicts)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "new.csv", result.Entries[0].Path)
}
