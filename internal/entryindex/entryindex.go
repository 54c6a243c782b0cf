// Package entryindex stores the flattened per-commit path -> entry index
// (spec §4.5, §5) used both to build Merkle trees and to answer "what
// changed" without re-walking the object DB. Grounded on
// niczy-poon/poon-server/storage/version.go's per-version entry listing,
// generalized from a single versioned-file list to arbitrary-depth paths.
package entryindex

import (
	"bytes"
	"context"
	"encoding/gob"
	"sort"

	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/oxerr"
)

// CommitEntry is one path's record within a commit's flattened index.
type CommitEntry struct {
	Path     string
	Hash     string
	Size     int64
	MTime    int64
	CommitID string
}

// Writer appends a commit's entries to its history KV, sorted by path —
// spec §5's ordering requirement, satisfied by sorting before the batch
// write rather than relying on KV iteration order.
type Writer struct {
	store kv.Store
}

func NewWriter(store kv.Store) *Writer {
	return &Writer{store: store}
}

func (w *Writer) WriteAll(ctx context.Context, entries []CommitEntry) error {
	sorted := append([]CommitEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, e := range sorted {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(e); err != nil {
			return oxerr.New(oxerr.KindSerialization, "entryindex.WriteAll", e.Path, err)
		}
		if err := w.store.Put(ctx, []byte(e.Path), buf.Bytes()); err != nil {
			return oxerr.Wrap("entryindex.WriteAll", err)
		}
	}
	return nil
}

// Reader reads back a commit's flattened path index.
type Reader struct {
	store kv.Store
}

func NewReader(store kv.Store) *Reader {
	return &Reader{store: store}
}

func (r *Reader) Get(ctx context.Context, path string) (CommitEntry, error) {
	var e CommitEntry
	data, err := r.store.Get(ctx, []byte(path))
	if err != nil {
		return e, oxerr.New(oxerr.KindNotFound, "entryindex.Get", path, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return e, oxerr.New(oxerr.KindSerialization, "entryindex.Get", path, err)
	}
	return e, nil
}

// All returns every entry, already path-sorted because the underlying KV
// iterator walks keys in lexicographic order.
func (r *Reader) All(ctx context.Context) ([]CommitEntry, error) {
	it := r.store.Iter(ctx, nil)
	defer it.Close()

	var out []CommitEntry
	for it.Next() {
		data, err := it.Value()
		if err != nil {
			return nil, oxerr.Wrap("entryindex.All", err)
		}
		var e CommitEntry
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
			return nil, oxerr.New(oxerr.KindSerialization, "entryindex.All", "", err)
		}
		out = append(out, e)
	}
	if err := it.Err(); err != nil {
		return nil, oxerr.Wrap("entryindex.All", err)
	}
	return out, nil
}

// Merge layers staged entries over a base set (base is typically HEAD's
// entries), staged entries winning on path collision, as spec §4.7
// requires for Commit. removed paths present in base are dropped.
func Merge(base, staged []CommitEntry, removed []string) []CommitEntry {
	byPath := make(map[string]CommitEntry, len(base)+len(staged))
	for _, e := range base {
		byPath[e.Path] = e
	}
	for _, p := range removed {
		delete(byPath, p)
	}
	for _, e := range staged {
		byPath[e.Path] = e
	}

	out := make([]CommitEntry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
