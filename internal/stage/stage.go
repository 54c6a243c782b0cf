// Package stage implements the staging area (spec §4.7): entries
// Added/Modified/Removed since the current HEAD, held in per-directory
// KV stores until Commit folds them into a new commit. Grounded on
// niczy-poon/poon-server/storage/memory.go's mutex-guarded map for the
// per-directory transient store shape, generalized from one global map
// to one store per staged directory so concurrent `add` calls touching
// different directories never contend.
package stage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/outpostml/dvc/internal/commitdb"
	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/merkle"
	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/outpostml/dvc/internal/refstore"
)

// Status is the per-path staged change kind.
type Status int

const (
	StatusAdded Status = iota
	StatusModified
	StatusRemoved
)

type StagedEntry struct {
	Path   string
	Hash   string
	Size   int64
	Status Status
}

// StoreFactory opens (or creates) the KV store backing one staged
// directory's buffer, by relative directory path. The Stager calls this
// lazily so an on-disk Stager can back each directory with its own
// BadgerStore and a test Stager can back every directory with a MemStore.
type StoreFactory func(dirPath string) (kv.Store, error)

// Stager buffers pending changes across directories until Commit.
type Stager struct {
	newStore  StoreFactory
	entries   *commitdb.DB
	refs      *refstore.Store
	builder   *merkle.Builder
	headReads func(ctx context.Context, commitID string) ([]entryindex.CommitEntry, error)

	mu     sync.Mutex
	stores map[string]kv.Store
}

// New builds a Stager. headReads resolves a commit id to its flattened
// entry list (typically entryindex.Reader.All against that commit's
// history KV) — injected so Stager doesn't need to know how history KVs
// are opened.
func New(newStore StoreFactory, commits *commitdb.DB, refs *refstore.Store, builder *merkle.Builder,
	headReads func(ctx context.Context, commitID string) ([]entryindex.CommitEntry, error)) *Stager {
	return &Stager{
		newStore:  newStore,
		entries:   commits,
		refs:      refs,
		builder:   builder,
		headReads: headReads,
		stores:    make(map[string]kv.Store),
	}
}

func (s *Stager) storeFor(dirPath string) (kv.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stores[dirPath]; ok {
		return st, nil
	}
	st, err := s.newStore(dirPath)
	if err != nil {
		return nil, oxerr.Wrap("stage.storeFor", err)
	}
	s.stores[dirPath] = st
	return st, nil
}

func splitDir(p string) (dir, base string) {
	dir = path.Dir(p)
	if dir == "." {
		dir = ""
	}
	return dir, path.Base(p)
}

// Add stages a file as Added (if it has no prior staged record) or
// Modified. Independently atomic: a single Put against the staged
// directory's store.
func (s *Stager) Add(ctx context.Context, filePath, contentHash string, size int64) error {
	dir, _ := splitDir(filePath)
	store, err := s.storeFor(dir)
	if err != nil {
		return err
	}

	status := StatusAdded
	if _, err := store.Get(ctx, []byte(filePath)); err == nil {
		status = StatusModified
	}

	e := StagedEntry{Path: filePath, Hash: contentHash, Size: size, Status: status}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return oxerr.New(oxerr.KindSerialization, "stage.Add", filePath, err)
	}
	return store.Put(ctx, []byte(filePath), buf.Bytes())
}

// Remove stages a file as Removed.
func (s *Stager) Remove(ctx context.Context, filePath string) error {
	dir, _ := splitDir(filePath)
	store, err := s.storeFor(dir)
	if err != nil {
		return err
	}
	e := StagedEntry{Path: filePath, Status: StatusRemoved}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return oxerr.New(oxerr.KindSerialization, "stage.Remove", filePath, err)
	}
	return store.Put(ctx, []byte(filePath), buf.Bytes())
}

// ListStaged reads every staged entry across every touched directory,
// non-destructively.
func (s *Stager) ListStaged(ctx context.Context) ([]StagedEntry, error) {
	s.mu.Lock()
	dirs := make([]string, 0, len(s.stores))
	for d := range s.stores {
		dirs = append(dirs, d)
	}
	s.mu.Unlock()
	sort.Strings(dirs)

	var out []StagedEntry
	for _, d := range dirs {
		store, err := s.storeFor(d)
		if err != nil {
			return nil, err
		}
		it := store.Iter(ctx, nil)
		for it.Next() {
			data, err := it.Value()
			if err != nil {
				it.Close()
				return nil, oxerr.Wrap("stage.ListStaged", err)
			}
			var e StagedEntry
			if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
				it.Close()
				return nil, oxerr.New(oxerr.KindSerialization, "stage.ListStaged", "", err)
			}
			out = append(out, e)
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, oxerr.Wrap("stage.ListStaged", err)
		}
	}
	return out, nil
}

// clear drops every staged entry across every touched directory.
func (s *Stager) clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dir, store := range s.stores {
		it := store.Iter(ctx, nil)
		var keys [][]byte
		for it.Next() {
			keys = append(keys, append([]byte(nil), it.Key()...))
		}
		it.Close()
		for _, k := range keys {
			if err := store.Delete(ctx, k); err != nil {
				return oxerr.Wrap("stage.clear", err)
			}
		}
		delete(s.stores, dir)
	}
	return nil
}

// Commit snapshots every staged entry, merges it over HEAD's entry set
// (staged entries win, staged removals drop base entries), builds the
// new commit's Merkle tree, writes the commit, advances the ref store,
// and clears the staging area (spec §4.7). It returns the full merged
// entry set alongside the commit so callers can persist the flattened
// per-commit index without re-deriving it from the parent chain.
func (s *Stager) Commit(ctx context.Context, message, author string) (*commitdb.Commit, []entryindex.CommitEntry, error) {
	staged, err := s.ListStaged(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(staged) == 0 {
		return nil, nil, oxerr.New(oxerr.KindBasic, "stage.Commit", "", errNothingStaged)
	}

	head, err := s.refs.Head()
	var baseEntries []entryindex.CommitEntry
	var parents []string
	if err == nil && head.CommitID != "" {
		parents = []string{head.CommitID}
		baseEntries, err = s.headReads(ctx, head.CommitID)
		if err != nil {
			return nil, nil, err
		}
	}

	var added []entryindex.CommitEntry
	var removedPaths []string
	now := time.Now()
	for _, e := range staged {
		if e.Status == StatusRemoved {
			removedPaths = append(removedPaths, e.Path)
			continue
		}
		added = append(added, entryindex.CommitEntry{Path: e.Path, Hash: e.Hash, Size: e.Size, MTime: now.Unix()})
	}

	merged := entryindex.Merge(baseEntries, added, removedPaths)

	rootHash, err := s.builder.Build(ctx, merged)
	if err != nil {
		return nil, nil, err
	}

	digests := make([]hash.EntryDigest, len(merged))
	for i, e := range merged {
		digests[i] = hash.EntryDigest{Path: e.Path, Hash: e.Hash}
	}

	commit := commitdb.NewCommit(parents, author, message, now, digests, rootHash)
	if err := s.entries.Put(ctx, commit); err != nil {
		return nil, nil, err
	}
	if err := s.refs.Advance(commit.ID); err != nil {
		return nil, nil, err
	}
	if err := s.clear(ctx); err != nil {
		return nil, nil, err
	}
	return &commit, merged, nil
}

var errNothingStaged = errors.New("nothing staged")
