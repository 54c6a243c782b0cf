// Package cache implements the single-file-per-commit cache layer (spec
// §4.10): a Cacher computes and reads one value per (repo, commit),
// idempotently. Grounded on niczy-poon/poon-server's per-version
// derived-artifact layout, generalized to a generic Cacher interface so
// every derived artifact (repo size, validity flag, compare output)
// shares one storage contract.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/outpostml/dvc/internal/compare"
	"github.com/outpostml/dvc/internal/merkle"
	"github.com/outpostml/dvc/internal/oxerr"
)

// Cacher computes and reads a derived value for a given commit.
type Cacher interface {
	Kind() string
	Compute(ctx context.Context, repoRoot, commitID string) error
	Read(ctx context.Context, repoRoot, commitID string) (value []byte, ok bool, err error)
}

func cacheFile(repoRoot, kind, commitID, name string) string {
	return filepath.Join(repoRoot, "cache", kind, commitID, name)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RepoSizeCacher sums file sizes under versions/, per commit.
type RepoSizeCacher struct{}

func (RepoSizeCacher) Kind() string { return "repo_size" }

func (c RepoSizeCacher) Compute(ctx context.Context, repoRoot, commitID string) error {
	var total int64
	err := filepath.WalkDir(filepath.Join(repoRoot, "versions"), func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return oxerr.Wrap("RepoSizeCacher.Compute", err)
	}
	return writeAtomic(cacheFile(repoRoot, c.Kind(), commitID, "size"), []byte(strconv.FormatInt(total, 10)))
}

func (c RepoSizeCacher) Read(ctx context.Context, repoRoot, commitID string) ([]byte, bool, error) {
	data, err := os.ReadFile(cacheFile(repoRoot, c.Kind(), commitID, "size"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, oxerr.Wrap("RepoSizeCacher.Read", err)
	}
	return data, true, nil
}

// ContentValidityCacher memoizes a commit's full Merkle validation
// result (spec §4.6: "Result is memoized per commit in the cache layer").
type ContentValidityCacher struct {
	Validator  *merkle.Validator
	RootHashOf func(commitID string) (string, error)
}

func (ContentValidityCacher) Kind() string { return "content_validity" }

func (c ContentValidityCacher) Compute(ctx context.Context, repoRoot, commitID string) error {
	rootHash, err := c.RootHashOf(commitID)
	if err != nil {
		return err
	}
	valid, err := c.Validator.ValidateComplete(ctx, rootHash)
	if err != nil {
		return err
	}
	value := "false"
	if valid {
		value = "true"
	}
	return writeAtomic(cacheFile(repoRoot, c.Kind(), commitID, "valid"), []byte(value))
}

func (c ContentValidityCacher) Read(ctx context.Context, repoRoot, commitID string) ([]byte, bool, error) {
	data, err := os.ReadFile(cacheFile(repoRoot, c.Kind(), commitID, "valid"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, oxerr.Wrap("ContentValidityCacher.Read", err)
	}
	return data, true, nil
}

// CompareCacher adapts compare.Engine/compare.Cache to the generic Cacher
// contract, so migrations and repo-level "recompute everything" sweeps
// can treat it like any other derived artifact.
type CompareCacher struct {
	Engine      *compare.Engine
	CacheStore  *compare.Cache
	RequestFor  func(repoRoot, commitID string) (compare.CompareRequest, error)
}

func (CompareCacher) Kind() string { return "compares" }

func (c CompareCacher) Compute(ctx context.Context, repoRoot, commitID string) error {
	req, err := c.RequestFor(repoRoot, commitID)
	if err != nil {
		return err
	}
	_, err = c.Engine.Compare(ctx, req)
	return err
}

func (c CompareCacher) Read(ctx context.Context, repoRoot, commitID string) ([]byte, bool, error) {
	req, err := c.RequestFor(repoRoot, commitID)
	if err != nil {
		return nil, false, err
	}
	result, hit, err := c.CacheStore.Get(ctx, req.CompareID, req.Left.CommitID, req.Right.CommitID)
	if err != nil || !hit {
		return nil, hit, err
	}
	return []byte(strconv.Itoa(len(result.Match.Rows))), true, nil
}
