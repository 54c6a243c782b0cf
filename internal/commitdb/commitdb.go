// Package commitdb stores commit records and maintains the parent
// adjacency index that makes history traversal O(depth) (spec §4.5).
// Grounded on niczy-poon/poon-server/storage/version.go's VersionManager,
// generalized from a single linear "current version" counter to the
// full parent-DAG model spec.md requires (arbitrary parent counts,
// branches, detached HEAD).
package commitdb

import (
	"bytes"
	"context"
	"encoding/gob"
	"sort"
	"time"

	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/oxerr"
)

// Commit is the immutable commit record (spec §3).
type Commit struct {
	ID        string
	ParentIDs []string
	Author    string
	Message   string
	Timestamp int64
	RootHash  string
}

// DB stores commit records keyed by id, plus a parent-adjacency index.
type DB struct {
	commits kv.Store
	parents kv.Store // id -> gob([]string) of parent ids, mirrors Commit.ParentIDs for O(1) lookups
}

func New(commits, parents kv.Store) *DB {
	return &DB{commits: commits, parents: parents}
}

// NewCommit computes a commit's id (spec §4.1 CommitHash) and fills in ID.
func NewCommit(parentIDs []string, author, message string, ts time.Time, entries []hash.EntryDigest, rootHash string) Commit {
	id := hash.CommitHash(parentIDs, author, message, ts.Unix(), entries)
	return Commit{
		ID:        id,
		ParentIDs: append([]string(nil), parentIDs...),
		Author:    author,
		Message:   message,
		Timestamp: ts.Unix(),
		RootHash:  rootHash,
	}
}

func (db *DB) Put(ctx context.Context, c Commit) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return oxerr.New(oxerr.KindSerialization, "commitdb.Put", c.ID, err)
	}
	if err := db.commits.Put(ctx, []byte(c.ID), buf.Bytes()); err != nil {
		return oxerr.Wrap("commitdb.Put", err)
	}

	var pbuf bytes.Buffer
	if err := gob.NewEncoder(&pbuf).Encode(c.ParentIDs); err != nil {
		return oxerr.New(oxerr.KindSerialization, "commitdb.Put", c.ID, err)
	}
	return db.parents.Put(ctx, []byte(c.ID), pbuf.Bytes())
}

func (db *DB) Get(ctx context.Context, id string) (Commit, error) {
	var c Commit
	data, err := db.commits.Get(ctx, []byte(id))
	if err != nil {
		return c, oxerr.New(oxerr.KindNotFound, "commitdb.Get", id, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return c, oxerr.New(oxerr.KindSerialization, "commitdb.Get", id, err)
	}
	return c, nil
}

// Parents returns a commit's parent ids via the adjacency index, without
// decoding the full commit record.
func (db *DB) Parents(ctx context.Context, id string) ([]string, error) {
	data, err := db.parents.Get(ctx, []byte(id))
	if err != nil {
		return nil, oxerr.New(oxerr.KindNotFound, "commitdb.Parents", id, err)
	}
	var parents []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&parents); err != nil {
		return nil, oxerr.New(oxerr.KindSerialization, "commitdb.Parents", id, err)
	}
	return parents, nil
}

// Exists reports whether a commit id is present, for ref-safety checks
// (spec §3 invariant: "a branch's target commit must exist").
func (db *DB) Exists(ctx context.Context, id string) bool {
	_, err := db.commits.Get(ctx, []byte(id))
	return err == nil
}

// History walks back from startID following ParentIDs[0] (first-parent
// history), newest first, stopping at the root commit (no parents).
// Returns oxerr.KindCommitDBCorrupted if a parent id is referenced but
// missing (spec §7).
func (db *DB) History(ctx context.Context, startID string) ([]Commit, error) {
	var out []Commit
	id := startID
	seen := make(map[string]bool)
	for id != "" {
		if seen[id] {
			break // defend against an accidental cycle rather than looping forever.
		}
		seen[id] = true

		c, err := db.Get(ctx, id)
		if err != nil {
			return nil, oxerr.New(oxerr.KindCommitDBCorrupted, "commitdb.History", id, err)
		}
		out = append(out, c)
		if len(c.ParentIDs) == 0 {
			break
		}
		id = c.ParentIDs[0]
	}
	return out, nil
}

// AllCommits returns every stored commit, sorted by timestamp ascending —
// the order the version-file migration's "down" direction needs to pick
// the earliest commit referencing a given (hash, ext) pair (spec §4.8).
func (db *DB) AllCommits(ctx context.Context) ([]Commit, error) {
	it := db.commits.Iter(ctx, nil)
	defer it.Close()

	var out []Commit
	for it.Next() {
		data, err := it.Value()
		if err != nil {
			return nil, oxerr.Wrap("commitdb.AllCommits", err)
		}
		var c Commit
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
			return nil, oxerr.New(oxerr.KindSerialization, "commitdb.AllCommits", "", err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}
