// Package repo wires the leaf subsystems (kv, versionstore, objectdb,
// commitdb, refstore, entryindex, merkle, stage) into the single
// Repository surface a CLI or future HTTP server calls (spec §2). It is
// the composition root: every other internal package stays ignorant of
// the on-disk directory layout, which is defined once, here. Grounded on
// niczy-poon/poon-server/storage/storage.go's single "Storage" façade
// over its sub-stores.
package repo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/outpostml/dvc/internal/commitdb"
	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/merkle"
	"github.com/outpostml/dvc/internal/objectdb"
	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/outpostml/dvc/internal/refstore"
	"github.com/outpostml/dvc/internal/stage"
	"github.com/outpostml/dvc/internal/versionstore"
	"go.uber.org/zap"
)

const (
	hiddenDirName  = ".dvc"
	lockFileName   = "LOCK"
	defaultBranch  = "main"
	mergeWorkers   = 8
	fileExtUnknown = ""
)

// Repository is the top-level handle into one repo's hidden directory.
type Repository struct {
	root   string // working tree root
	hidden string // root/.dvc

	log *zap.SugaredLogger

	blobs     *versionstore.Store
	objects   *objectdb.DB
	commits   *commitdb.DB
	refs      *refstore.Store
	builder   *merkle.Builder
	validator *merkle.Validator
	stager    *stage.Stager
	lock      *lockFile
}

// Init creates a new repository's hidden directory layout at root, the
// way niczy-poon's init path lays out its top-level directories, and
// writes an initial attached HEAD.
func Init(root string, log *zap.SugaredLogger) (*Repository, error) {
	hidden := filepath.Join(root, hiddenDirName)
	if _, err := os.Stat(hidden); err == nil {
		return nil, oxerr.New(oxerr.KindAlreadyExists, "repo.Init", hidden, nil)
	}

	for _, sub := range []string{"versions", "objects", "refs/heads", "history", "cache", "staged"} {
		if err := os.MkdirAll(filepath.Join(hidden, sub), 0o755); err != nil {
			return nil, oxerr.Wrap("repo.Init", err)
		}
	}

	r, err := Open(root, log)
	if err != nil {
		return nil, err
	}
	if err := r.refs.InitializeHead(defaultBranch); err != nil {
		return nil, err
	}
	return r, nil
}

// Open attaches to an existing repository's hidden directory, acquiring
// the repo-level lock (spec §5: "a repo-level lock file at the repo's
// hidden-directory root; acquisition is scoped to the operation and
// released on all exit paths including failures").
func Open(root string, log *zap.SugaredLogger) (*Repository, error) {
	hidden := filepath.Join(root, hiddenDirName)
	if _, err := os.Stat(hidden); err != nil {
		return nil, oxerr.NotFound("repo.Open", hidden)
	}

	lock, err := acquireLock(filepath.Join(hidden, lockFileName))
	if err != nil {
		return nil, err
	}

	openKV := func(name string) (*kv.BadgerStore, error) {
		return kv.Open(filepath.Join(hidden, "objects", name), kv.ReadWrite, log)
	}

	filesStore, err := openKV("files")
	if err != nil {
		lock.release()
		return nil, err
	}
	dirsStore, err := openKV("dirs")
	if err != nil {
		lock.release()
		return nil, err
	}
	vnodesStore, err := openKV("vnodes")
	if err != nil {
		lock.release()
		return nil, err
	}
	schemasStore, err := openKV("schemas")
	if err != nil {
		lock.release()
		return nil, err
	}
	commitsStore, err := kv.Open(filepath.Join(hidden, "commits"), kv.ReadWrite, log)
	if err != nil {
		lock.release()
		return nil, err
	}
	parentsStore, err := kv.Open(filepath.Join(hidden, "parents"), kv.ReadWrite, log)
	if err != nil {
		lock.release()
		return nil, err
	}

	objects := objectdb.New(filesStore, dirsStore, vnodesStore, schemasStore)
	commits := commitdb.New(commitsStore, parentsStore)
	refs := refstore.New(filepath.Join(hidden))
	blobs := versionstore.New(filepath.Join(hidden, "versions"))
	builder := merkle.NewBuilder(objects, mergeWorkers)
	validator := merkle.NewValidator(objects, blobs, log)

	r := &Repository{
		root:      root,
		hidden:    hidden,
		log:       log,
		blobs:     blobs,
		objects:   objects,
		commits:   commits,
		refs:      refs,
		builder:   builder,
		validator: validator,
		lock:      lock,
	}

	newStore := func(dirPath string) (kv.Store, error) {
		safe := filepath.FromSlash(dirPath)
		return kv.Open(filepath.Join(hidden, "staged", "dirs", safe), kv.ReadWrite, log)
	}
	headReads := func(ctx context.Context, commitID string) ([]entryindex.CommitEntry, error) {
		reader, err := r.historyReader(commitID)
		if err != nil {
			return nil, err
		}
		return reader.All(ctx)
	}
	r.stager = stage.New(newStore, commits, refs, builder, headReads)

	return r, nil
}

// Close releases the repo-level lock and every open store.
func (r *Repository) Close() error {
	return r.lock.release()
}

func (r *Repository) historyDir(commitID string) string {
	return filepath.Join(r.hidden, "history", commitID, "dirs")
}

func (r *Repository) historyReader(commitID string) (*entryindex.Reader, error) {
	store, err := kv.Open(r.historyDir(commitID), kv.ReadWrite, r.log)
	if err != nil {
		return nil, err
	}
	return entryindex.NewReader(store), nil
}

// Add stages a file for commit: hashes its content, writes the blob into
// the version store, and records the staged entry.
func (r *Repository) Add(ctx context.Context, relPath string) error {
	absPath := filepath.Join(r.root, relPath)
	contentHash, err := hash.HashFile(ctx, absPath)
	if err != nil {
		return oxerr.Wrap("repo.Add", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return oxerr.Wrap("repo.Add", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return oxerr.Wrap("repo.Add", err)
	}
	defer f.Close()

	if _, err := r.blobs.Write(ctx, contentHash, fileExtUnknown, f); err != nil {
		return err
	}
	if err := r.blobs.WriteHashSidecar(contentHash); err != nil {
		return err
	}

	return r.stager.Add(ctx, relPath, contentHash, info.Size())
}

// Remove stages a path for removal.
func (r *Repository) Remove(ctx context.Context, relPath string) error {
	return r.stager.Remove(ctx, relPath)
}

// Status lists pending staged changes, non-destructively.
func (r *Repository) Status(ctx context.Context) ([]stage.StagedEntry, error) {
	return r.stager.ListStaged(ctx)
}

// Commit finalizes the staging area into a new commit, writes the
// flattened entry index for the new commit, and advances refs.
func (r *Repository) Commit(ctx context.Context, message, author string) (*commitdb.Commit, error) {
	commit, entries, err := r.stager.Commit(ctx, message, author)
	if err != nil {
		return nil, err
	}

	historyStore, err := kv.Open(r.historyDir(commit.ID), kv.ReadWrite, r.log)
	if err != nil {
		return nil, err
	}
	writer := entryindex.NewWriter(historyStore)
	if err := writer.WriteAll(ctx, entries); err != nil {
		return nil, err
	}
	return commit, nil
}

// Log returns the commit chain from HEAD, newest first.
func (r *Repository) Log(ctx context.Context) ([]commitdb.Commit, error) {
	head, err := r.refs.Head()
	if err != nil {
		return nil, err
	}
	if head.CommitID == "" {
		return nil, nil
	}
	return r.commits.History(ctx, head.CommitID)
}

// CreateBranch creates a new branch pointed at HEAD's current commit.
func (r *Repository) CreateBranch(name string) error {
	head, err := r.refs.Head()
	if err != nil {
		return err
	}
	return r.refs.CreateBranch(name, head.CommitID)
}

// Checkout moves HEAD to an existing branch.
func (r *Repository) Checkout(name string) error {
	return r.refs.SetHeadToBranch(name)
}

// Validate runs a full Merkle content-validity check against a commit's
// root tree.
func (r *Repository) Validate(ctx context.Context, commitID string) (bool, error) {
	commit, err := r.commits.Get(ctx, commitID)
	if err != nil {
		return false, err
	}
	return r.validator.ValidateComplete(ctx, commit.RootHash)
}

// EntriesAt returns the flattened path->content entry list recorded for a
// commit, the same list Commit persisted under history/<id>/dirs.
func (r *Repository) EntriesAt(ctx context.Context, commitID string) ([]entryindex.CommitEntry, error) {
	reader, err := r.historyReader(commitID)
	if err != nil {
		return nil, err
	}
	return reader.All(ctx)
}

// OpenBlob opens the canonical blob file for a content hash, for reading
// committed file content by path resolved via EntriesAt.
func (r *Repository) OpenBlob(contentHash string) (*os.File, error) {
	f, err := os.Open(r.blobs.Path(contentHash, fileExtUnknown))
	if err != nil {
		return nil, oxerr.Wrap("repo.OpenBlob", err)
	}
	return f, nil
}
