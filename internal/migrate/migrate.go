// Package migrate implements the namespace-wide migration framework
// (spec §4.8): idempotent, independently reversible steps run across
// every repository under a namespace root, continuing past per-repo
// failures. Grounded on original_source's command/migrate.rs
// continue-on-error fan-out, translated into Go's
// (Migration, Registry) shape.
package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/outpostml/dvc/internal/commitdb"
	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/merkle"
	"github.com/outpostml/dvc/internal/objectdb"
	"github.com/outpostml/dvc/internal/oxerr"
	"go.uber.org/zap"
)

// Migration is one reversible, idempotent schema/layout change applied
// to a single repository's hidden directory.
type Migration interface {
	Name() string
	IsNeeded(ctx context.Context, repoRoot string) (bool, error)
	Up(ctx context.Context, repoRoot string) error
	Down(ctx context.Context, repoRoot string) error
}

// Registry lists migrations in application order.
type Registry struct {
	migrations []Migration
	log        *zap.SugaredLogger
}

func NewRegistry(log *zap.SugaredLogger, migrations ...Migration) *Registry {
	return &Registry{migrations: migrations, log: log}
}

// RunAll applies every needed migration to every repository under
// namespaceRoot (a directory one level above individual repo roots,
// unless all is false, which restricts to namespaceRoot itself being a
// single repo). Failures are logged and the walk continues to the next
// repo, mirroring the Rust original's per-repo continue-on-error fan-out.
func (r *Registry) RunAll(ctx context.Context, namespaceRoot string, all bool) error {
	repos, err := discoverRepos(namespaceRoot, all)
	if err != nil {
		return oxerr.Wrap("migrate.RunAll", err)
	}

	for _, repoRoot := range repos {
		for _, m := range r.migrations {
			needed, err := m.IsNeeded(ctx, repoRoot)
			if err != nil {
				r.log.Warnw("migration IsNeeded check failed", "migration", m.Name(), "repo", repoRoot, "err", err)
				continue
			}
			if !needed {
				continue
			}
			if err := m.Up(ctx, repoRoot); err != nil {
				r.log.Errorw("migration failed", "migration", m.Name(), "repo", repoRoot, "err", err)
				continue
			}
			r.log.Infow("migration applied", "migration", m.Name(), "repo", repoRoot)
		}
	}
	return nil
}

func discoverRepos(namespaceRoot string, all bool) ([]string, error) {
	if !all {
		return []string{namespaceRoot}, nil
	}
	entries, err := os.ReadDir(namespaceRoot)
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, e := range entries {
		if e.IsDir() {
			repos = append(repos, filepath.Join(namespaceRoot, e.Name()))
		}
	}
	return repos, nil
}

const hashSidecarName = "HASH"

// RenameVersionedFilesMigration renames versioned blobs from the legacy
// <commit_id>.<ext> naming to the canonical data.<ext> naming (spec
// §4.8). Up is idempotent: a file already named data.* is left alone.
type RenameVersionedFilesMigration struct{}

func (RenameVersionedFilesMigration) Name() string { return "rename_versioned_files" }

func (RenameVersionedFilesMigration) IsNeeded(ctx context.Context, repoRoot string) (bool, error) {
	versionsDir := filepath.Join(repoRoot, "versions")
	needed := false
	err := filepath.WalkDir(versionsDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == hashSidecarName || strings.HasPrefix(name, "data") {
			return nil
		}
		needed = true
		return filepath.SkipAll
	})
	if err != nil && !os.IsNotExist(err) {
		return false, oxerr.Wrap("RenameVersionedFilesMigration.IsNeeded", err)
	}
	return needed, nil
}

func (RenameVersionedFilesMigration) Up(ctx context.Context, repoRoot string) error {
	versionsDir := filepath.Join(repoRoot, "versions")
	return filepath.WalkDir(versionsDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == hashSidecarName || strings.HasPrefix(name, "data") {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		newName := "data"
		if ext != "" {
			newName += "." + ext
		}
		newPath := filepath.Join(filepath.Dir(p), newName)
		if _, statErr := os.Stat(newPath); statErr == nil {
			return nil // already migrated.
		}
		return os.Rename(p, newPath)
	})
}

// Down renames nothing and always returns nil: it does not open the
// commit or entry stores, so no data.<ext> blob is renamed back. The
// reversal is DownWithHistory, which takes those stores from its caller.
func (RenameVersionedFilesMigration) Down(ctx context.Context, repoRoot string) error {
	return nil
}

// DownWithHistory reconstructs <commit_id>.<ext> names by walking every
// commit's entries and, per distinct (hash, ext), picking the earliest
// commit by timestamp that references it (spec §4.8). A missing file is
// logged as a warning and skipped rather than treated as fatal — see
// DESIGN.md Open Questions. It takes an open commit DB and an entry
// reader lookup keyed by commit id; no package in this module calls it.
func DownWithHistory(ctx context.Context, repoRoot string, commits *commitdb.DB,
	entriesFor func(commitID string) (*entryindex.Reader, error), log *zap.SugaredLogger) error {

	all, err := commits.AllCommits(ctx)
	if err != nil {
		return err
	}

	type key struct{ hash, ext string }
	earliest := make(map[key]commitdb.Commit)

	for _, c := range all {
		reader, err := entriesFor(c.ID)
		if err != nil {
			log.Warnw("DownWithHistory: could not open entry index", "commit", c.ID, "err", err)
			continue
		}
		entries, err := reader.All(ctx)
		if err != nil {
			log.Warnw("DownWithHistory: could not read entries", "commit", c.ID, "err", err)
			continue
		}
		for _, e := range entries {
			ext := strings.TrimPrefix(filepath.Ext(e.Path), ".")
			k := key{hash: e.Hash, ext: ext}
			if existing, ok := earliest[k]; !ok || c.Timestamp < existing.Timestamp {
				earliest[k] = c
			}
		}
	}

	for k, c := range earliest {
		dir := versionDirFor(repoRoot, k.hash)
		dataName := "data"
		if k.ext != "" {
			dataName += "." + k.ext
		}
		src := filepath.Join(dir, dataName)
		legacyName := c.ID
		if k.ext != "" {
			legacyName += "." + k.ext
		}
		dst := filepath.Join(dir, legacyName)

		if _, err := os.Stat(src); err != nil {
			log.Warnw("DownWithHistory: source blob missing, skipping", "path", src, "err", err)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return oxerr.Wrap("DownWithHistory", err)
		}
	}
	return nil
}

func versionDirFor(repoRoot, contentHash string) string {
	if len(contentHash) < 3 {
		return filepath.Join(repoRoot, "versions", contentHash)
	}
	return filepath.Join(repoRoot, "versions", contentHash[:2], contentHash[2:])
}

// treeRootKey is the single key a commit's history/<id>/tree/ store holds:
// its built Merkle root hash.
var treeRootKey = []byte("root")

// openCommitsObjects opens the shared stores BuildMerkleTreesMigration
// needs for one repoRoot: the commit DB (to list commits) and the object
// DB (for the builder to write Dir/VNode objects into). repoRoot follows
// the same convention as RenameVersionedFilesMigration: it is the
// repository's hidden directory itself, so paths are joined directly
// against it, mirroring internal/repo.Open's layout.
func openCommitsObjects(repoRoot string, log *zap.SugaredLogger) (*commitdb.DB, *objectdb.DB, func() error, error) {
	open := func(name string) (*kv.BadgerStore, error) {
		return kv.Open(filepath.Join(repoRoot, name), kv.ReadWrite, log)
	}

	commitsStore, err := open("commits")
	if err != nil {
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}
	parentsStore, err := open("parents")
	if err != nil {
		commitsStore.Close()
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}
	filesStore, err := open(filepath.Join("objects", "files"))
	if err != nil {
		commitsStore.Close()
		parentsStore.Close()
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}
	dirsStore, err := open(filepath.Join("objects", "dirs"))
	if err != nil {
		commitsStore.Close()
		parentsStore.Close()
		filesStore.Close()
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}
	vnodesStore, err := open(filepath.Join("objects", "vnodes"))
	if err != nil {
		commitsStore.Close()
		parentsStore.Close()
		filesStore.Close()
		dirsStore.Close()
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}
	schemasStore, err := open(filepath.Join("objects", "schemas"))
	if err != nil {
		commitsStore.Close()
		parentsStore.Close()
		filesStore.Close()
		dirsStore.Close()
		vnodesStore.Close()
		return nil, nil, nil, oxerr.Wrap("migrate.openCommitsObjects", err)
	}

	closeAll := func() error {
		var first error
		for _, s := range []kv.Store{commitsStore, parentsStore, filesStore, dirsStore, vnodesStore, schemasStore} {
			if err := s.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	return commitdb.New(commitsStore, parentsStore), objectdb.New(filesStore, dirsStore, vnodesStore, schemasStore), closeAll, nil
}

func treeStorePath(repoRoot, commitID string) string {
	return filepath.Join(repoRoot, "history", commitID, "tree")
}

func treeRootExists(ctx context.Context, repoRoot, commitID string, log *zap.SugaredLogger) (bool, error) {
	store, err := kv.Open(treeStorePath(repoRoot, commitID), kv.ReadWrite, log)
	if err != nil {
		return false, oxerr.Wrap("migrate.treeRootExists", err)
	}
	defer store.Close()
	it := store.Iter(ctx, nil)
	defer it.Close()
	return it.Next(), nil
}

func entriesForCommit(ctx context.Context, repoRoot, commitID string, log *zap.SugaredLogger) ([]entryindex.CommitEntry, error) {
	store, err := kv.Open(filepath.Join(repoRoot, "history", commitID, "dirs"), kv.ReadWrite, log)
	if err != nil {
		return nil, oxerr.Wrap("migrate.entriesForCommit", err)
	}
	defer store.Close()
	return entryindex.NewReader(store).All(ctx)
}

func writeTreeRoot(ctx context.Context, repoRoot, commitID, rootHash string, log *zap.SugaredLogger) error {
	store, err := kv.Open(treeStorePath(repoRoot, commitID), kv.ReadWrite, log)
	if err != nil {
		return oxerr.Wrap("migrate.writeTreeRoot", err)
	}
	defer store.Close()
	return store.Put(ctx, treeRootKey, []byte(rootHash))
}

// deleteTreeRoot removes a commit's whole history/<id>/tree/ directory.
func deleteTreeRoot(ctx context.Context, repoRoot, commitID string, log *zap.SugaredLogger) error {
	if err := os.RemoveAll(treeStorePath(repoRoot, commitID)); err != nil {
		return oxerr.Wrap("migrate.deleteTreeRoot", err)
	}
	return nil
}

// BuildMerkleTreesMigration ensures every commit has a built tree under
// history/<id>/tree/. Up is idempotent: a commit whose tree KV is
// non-empty is skipped. Unlike RenameVersionedFilesMigration it needs the
// commit and object stores open, so it opens and closes its own handles
// on repoRoot for the duration of each call rather than holding them —
// a Registry run applies many migrations across many repos in one
// process, and BadgerDB only allows one read-write handle per path at a
// time.
type BuildMerkleTreesMigration struct {
	Workers int // concurrent subtree hashing passed to merkle.NewBuilder; <=0 means 1.
	Log     *zap.SugaredLogger
}

func (BuildMerkleTreesMigration) Name() string { return "build_merkle_trees" }

func (m BuildMerkleTreesMigration) logger() *zap.SugaredLogger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop().Sugar()
}

func (m BuildMerkleTreesMigration) IsNeeded(ctx context.Context, repoRoot string) (bool, error) {
	log := m.logger()
	commits, _, closeAll, err := openCommitsObjects(repoRoot, log)
	if err != nil {
		return false, err
	}
	defer closeAll()

	all, err := commits.AllCommits(ctx)
	if err != nil {
		return false, oxerr.Wrap("BuildMerkleTreesMigration.IsNeeded", err)
	}
	for _, c := range all {
		has, err := treeRootExists(ctx, repoRoot, c.ID, log)
		if err != nil {
			return false, err
		}
		if !has {
			return true, nil
		}
	}
	return false, nil
}

func (m BuildMerkleTreesMigration) Up(ctx context.Context, repoRoot string) error {
	log := m.logger()
	commits, objects, closeAll, err := openCommitsObjects(repoRoot, log)
	if err != nil {
		return err
	}
	defer closeAll()

	builder := merkle.NewBuilder(objects, m.Workers)

	all, err := commits.AllCommits(ctx)
	if err != nil {
		return oxerr.Wrap("BuildMerkleTreesMigration.Up", err)
	}
	for _, c := range all {
		has, err := treeRootExists(ctx, repoRoot, c.ID, log)
		if err != nil {
			return err
		}
		if has {
			continue
		}

		entries, err := entriesForCommit(ctx, repoRoot, c.ID, log)
		if err != nil {
			return err
		}
		rootHash, err := builder.Build(ctx, entries)
		if err != nil {
			return oxerr.Wrap("BuildMerkleTreesMigration.Up", err)
		}
		if err := writeTreeRoot(ctx, repoRoot, c.ID, rootHash, log); err != nil {
			return err
		}
	}
	return nil
}

func (m BuildMerkleTreesMigration) Down(ctx context.Context, repoRoot string) error {
	log := m.logger()
	commits, _, closeAll, err := openCommitsObjects(repoRoot, log)
	if err != nil {
		return err
	}
	defer closeAll()

	all, err := commits.AllCommits(ctx)
	if err != nil {
		return oxerr.Wrap("BuildMerkleTreesMigration.Down", err)
	}
	for _, c := range all {
		if err := deleteTreeRoot(ctx, repoRoot, c.ID, log); err != nil {
			return err
		}
	}
	return nil
}
