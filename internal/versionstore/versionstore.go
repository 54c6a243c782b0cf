// Package versionstore implements the content-addressed blob store under
// <repo>/.<hidden>/versions/ (spec §4.3). Writing is "create parent dirs,
// stream to a temp file in the same directory, rename into place" — the
// same atomic-write discipline 0xlemi-microprolly/pkg/branch/manager.go
// uses for small ref files, generalized here to streamed, arbitrarily
// large blobs.
package versionstore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/oxerr"
)

const hashSidecarName = "HASH"

// Store resolves content hashes to canonical on-disk paths and writes new
// blobs atomically.
type Store struct {
	root string // <repo>/.<hidden>/versions
}

func New(root string) *Store {
	return &Store{root: root}
}

// Dir returns the canonical directory for hash: versions/<hash[0:2]>/<hash[2:]>/
func (s *Store) Dir(contentHash string) string {
	if len(contentHash) < 3 {
		return filepath.Join(s.root, contentHash)
	}
	return filepath.Join(s.root, contentHash[:2], contentHash[2:])
}

// Path returns the canonical data file path for hash, honoring ext
// (without the leading dot) if given.
func (s *Store) Path(contentHash, ext string) string {
	name := "data"
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(s.Dir(contentHash), name)
}

// Write streams r into the canonical location for contentHash, creating
// parent directories and performing an atomic rename into place. Writing
// the same hash twice is idempotent: the second write returns the
// existing path without reading r, and the existing blob is left
// untouched (spec §8, testable property 1).
func (s *Store) Write(ctx context.Context, contentHash, ext string, r io.Reader) (string, error) {
	dir := s.Dir(contentHash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", oxerr.Wrap("versionstore.Write", err)
	}

	finalPath := s.Path(contentHash, ext)
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil // monotonic: never rewritten in place.
	}

	tmp, err := os.CreateTemp(dir, ".data-tmp-*")
	if err != nil {
		return "", oxerr.Wrap("versionstore.Write", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away.

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", oxerr.Wrap("versionstore.Write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", oxerr.Wrap("versionstore.Write", err)
	}
	if err := tmp.Close(); err != nil {
		return "", oxerr.Wrap("versionstore.Write", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", oxerr.Wrap("versionstore.Write", err)
	}

	return finalPath, nil
}

// WriteHashSidecar writes the precomputed HASH sidecar next to a blob
// (spec §4.3). VerifyBlob does not read it; validation always rehashes.
func (s *Store) WriteHashSidecar(contentHash string) error {
	sidecar := filepath.Join(s.Dir(contentHash), hashSidecarName)
	tmp := sidecar + ".tmp"
	if err := os.WriteFile(tmp, []byte(contentHash), 0o644); err != nil {
		return oxerr.Wrap("versionstore.WriteHashSidecar", err)
	}
	return os.Rename(tmp, sidecar)
}

// ReadHashSidecar returns the sidecar's recorded hash, if present.
func (s *Store) ReadHashSidecar(contentHash string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.Dir(contentHash), hashSidecarName))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Exists reports whether a blob for contentHash has already been written.
func (s *Store) Exists(contentHash, ext string) bool {
	_, err := os.Stat(s.Path(contentHash, ext))
	return err == nil
}

// VerifyBlob always rehashes the on-disk blob bytes and reports whether
// the result matches contentHash. The HASH sidecar records the hash a
// writer believed it wrote, but it is not independent evidence about the
// data file's current bytes — trusting it without rehashing would let a
// blob corrupted after write (disk bitrot, a truncated copy, manual
// tampering) go undetected, since the sidecar only ever echoes the
// caller's own contentHash back. Rehashing is the only check that
// actually reads data.<ext> off disk.
func (s *Store) VerifyBlob(ctx context.Context, contentHash, ext string) (bool, error) {
	actual, err := hash.HashFile(ctx, s.Path(contentHash, ext))
	if err != nil {
		if os.IsNotExist(err) {
			return false, oxerr.NotFound("versionstore.VerifyBlob", contentHash)
		}
		return false, oxerr.Wrap("versionstore.VerifyBlob", err)
	}
	return actual == contentHash, nil
}
