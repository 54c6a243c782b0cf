package merkle

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/objectdb"
	"github.com/outpostml/dvc/internal/versionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFileContents(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func newTestObjectDB() *objectdb.DB {
	return objectdb.New(kv.NewMemStore(), kv.NewMemStore(), kv.NewMemStore(), kv.NewMemStore())
}

func TestBuildIsDeterministic(t *testing.T) {
	objects := newTestObjectDB()
	builder := NewBuilder(objects, 4)
	ctx := context.Background()

	entries := []entryindex.CommitEntry{
		{Path: "a.csv", Hash: "ha"},
		{Path: "dir/b.csv", Hash: "hb"},
	}

	root1, err := builder.Build(ctx, entries)
	require.NoError(t, err)

	root2, err := builder.Build(ctx, entries)
	require.NoError(t, err)

	assert.Equal(t, root1, root2)
}

func TestBuildStructuralSharing(t *testing.T) {
	objects := newTestObjectDB()
	builder := NewBuilder(objects, 4)
	ctx := context.Background()

	entriesA := []entryindex.CommitEntry{{Path: "shared/x.csv", Hash: "hx"}, {Path: "only_a.csv", Hash: "ha"}}
	entriesB := []entryindex.CommitEntry{{Path: "shared/x.csv", Hash: "hx"}, {Path: "only_b.csv", Hash: "hb"}}

	rootA, err := builder.Build(ctx, entriesA)
	require.NoError(t, err)
	rootB, err := builder.Build(ctx, entriesB)
	require.NoError(t, err)

	// Distinct trees overall, but the unchanged "shared/" subtree must be
	// the identical dir object under both roots.
	assert.NotEqual(t, rootA, rootB)
	dirA, err := objects.GetDir(ctx, rootA)
	require.NoError(t, err)
	dirB, err := objects.GetDir(ctx, rootB)
	require.NoError(t, err)

	sharedHash := func(children []objectdb.Child) string {
		for _, c := range children {
			if c.Name == "shared" {
				return c.Hash
			}
		}
		return ""
	}
	assert.NotEmpty(t, sharedHash(dirA.Children))
	assert.Equal(t, sharedHash(dirA.Children), sharedHash(dirB.Children))
}

func TestValidateCompleteDetectsCorruption(t *testing.T) {
	objects := newTestObjectDB()
	tmp := t.TempDir()
	blobs := versionstore.New(tmp)
	ctx := context.Background()

	content := []byte("hello world")
	contentHash := hash.HashBytes(content)
	path, err := blobs.Write(ctx, contentHash, "", bytes.NewReader(content))
	require.NoError(t, err)
	// No sidecar written: ValidateComplete rehashes the blob from disk, so
	// a tampered blob is actually caught.

	builder := NewBuilder(objects, 2)
	entries := []entryindex.CommitEntry{{Path: "f.txt", Hash: contentHash}}
	root, err := builder.Build(ctx, entries)
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	validator := NewValidator(objects, blobs, log)

	ok, err := validator.ValidateComplete(ctx, root)
	require.NoError(t, err)
	assert.True(t, ok)

	// Overwrite the blob in place so its bytes no longer match contentHash.
	require.NoError(t, writeFileContents(path, []byte("tampered")))
	ok, err = validator.ValidateComplete(ctx, root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateIncrementalSkipsUnchangedRoot(t *testing.T) {
	objects := newTestObjectDB()
	tmp := t.TempDir()
	blobs := versionstore.New(tmp)
	log := zap.NewNop().Sugar()
	validator := NewValidator(objects, blobs, log)

	ok, err := validator.ValidateIncremental(context.Background(), "sameroot", "sameroot")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestValidateIncrementalSkipsUnchangedSubtree builds two commits sharing
// an untouched "shared/" subtree and differing only under "changed/",
// then corrupts the shared subtree's blob on disk. ValidateIncremental
// must not notice (it never re-walks the matching subtree), while
// ValidateComplete, which rehashes everything, must catch it — proving
// the incremental walk does real per-subtree skipping rather than
// degrading to a full walk.
func TestValidateIncrementalSkipsUnchangedSubtree(t *testing.T) {
	objects := newTestObjectDB()
	tmp := t.TempDir()
	blobs := versionstore.New(tmp)
	ctx := context.Background()

	sharedContent := []byte("shared content")
	sharedHash := hash.HashBytes(sharedContent)
	sharedPath, err := blobs.Write(ctx, sharedHash, "", bytes.NewReader(sharedContent))
	require.NoError(t, err)

	oldContent := []byte("old changed content")
	oldHash := hash.HashBytes(oldContent)
	_, err = blobs.Write(ctx, oldHash, "", bytes.NewReader(oldContent))
	require.NoError(t, err)

	newContent := []byte("new changed content")
	newHash := hash.HashBytes(newContent)
	_, err = blobs.Write(ctx, newHash, "", bytes.NewReader(newContent))
	require.NoError(t, err)

	builder := NewBuilder(objects, 2)
	parentRoot, err := builder.Build(ctx, []entryindex.CommitEntry{
		{Path: "shared/x.csv", Hash: sharedHash},
		{Path: "changed/y.csv", Hash: oldHash},
	})
	require.NoError(t, err)
	childRoot, err := builder.Build(ctx, []entryindex.CommitEntry{
		{Path: "shared/x.csv", Hash: sharedHash},
		{Path: "changed/y.csv", Hash: newHash},
	})
	require.NoError(t, err)
	require.NotEqual(t, parentRoot, childRoot)

	// Corrupt the untouched shared blob in place.
	require.NoError(t, writeFileContents(sharedPath, []byte("tampered")))

	log := zap.NewNop().Sugar()
	validator := NewValidator(objects, blobs, log)

	ok, err := validator.ValidateComplete(ctx, childRoot)
	require.NoError(t, err)
	assert.False(t, ok, "ValidateComplete rehashes every blob and must catch the tampered shared blob")

	ok, err = validator.ValidateIncremental(ctx, childRoot, parentRoot)
	require.NoError(t, err)
	assert.True(t, ok, "ValidateIncremental must skip the unchanged shared/ subtree rather than rehashing it")
}
