// Package refstore manages branch references and HEAD (spec §4.5, §6),
// grounded directly on 0xlemi-microprolly/pkg/branch/{manager.go,head.go}:
// one-line files under refs/heads/<name>, written with the
// temp-file+fsync+rename discipline those files use for atomicity, and a
// HEAD file that is either "ref: refs/heads/<name>\n" (attached) or a raw
// commit id (detached).
package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/outpostml/dvc/internal/oxerr"
)

const headRefPrefix = "ref: refs/heads/"

// Head describes the current position in the commit graph.
type Head struct {
	Attached bool
	Branch   string // set iff Attached
	CommitID string // resolved target commit id (branch's target, or the detached commit)
}

// Store is the branch+HEAD reference store rooted at a repo's hidden
// directory.
type Store struct {
	root     string // <repo>/.<hidden>
	headFile string
	refsDir  string

	mu sync.Mutex // serializes Advance calls; branch-level locking is per-name below.
	branchLocks struct {
		sync.Mutex
		locks map[string]*sync.Mutex
	}
}

func New(root string) *Store {
	s := &Store{
		root:     root,
		headFile: filepath.Join(root, "HEAD"),
		refsDir:  filepath.Join(root, "refs", "heads"),
	}
	s.branchLocks.locks = make(map[string]*sync.Mutex)
	return s
}

func (s *Store) branchLock(name string) *sync.Mutex {
	s.branchLocks.Lock()
	defer s.branchLocks.Unlock()
	l, ok := s.branchLocks.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.branchLocks.locks[name] = l
	}
	return l
}

func (s *Store) branchPath(name string) string {
	return filepath.Join(s.refsDir, name)
}

// writeFileAtomic is the shared temp-file+fsync+rename primitive used by
// both branch refs and HEAD.
func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	tmp, err := os.CreateTemp(dir, ".ref-tmp-*")
	if err != nil {
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return oxerr.Wrap("refstore.writeFileAtomic", err)
	}
	return nil
}

// CreateBranch fails if name already exists (spec §4.5).
func (s *Store) CreateBranch(name, commitID string) error {
	l := s.branchLock(name)
	l.Lock()
	defer l.Unlock()

	if s.BranchExists(name) {
		return oxerr.New(oxerr.KindAlreadyExists, "refstore.CreateBranch", name, nil)
	}
	return writeFileAtomic(s.branchPath(name), commitID+"\n")
}

// UpdateBranch advances an existing branch to commitID.
func (s *Store) UpdateBranch(name, commitID string) error {
	l := s.branchLock(name)
	l.Lock()
	defer l.Unlock()

	if !s.BranchExists(name) {
		return oxerr.NotFound("refstore.UpdateBranch", name)
	}
	return writeFileAtomic(s.branchPath(name), commitID+"\n")
}

// GetBranch returns the commit id a branch points to.
func (s *Store) GetBranch(name string) (string, error) {
	data, err := os.ReadFile(s.branchPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", oxerr.NotFound("refstore.GetBranch", name)
		}
		return "", oxerr.Wrap("refstore.GetBranch", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) BranchExists(name string) bool {
	_, err := os.Stat(s.branchPath(name))
	return err == nil
}

// DeleteBranch fails if name is HEAD's current attached target, unless
// force is set (spec §4.5, testable property 9).
func (s *Store) DeleteBranch(name string, force bool) error {
	l := s.branchLock(name)
	l.Lock()
	defer l.Unlock()

	if !s.BranchExists(name) {
		return oxerr.NotFound("refstore.DeleteBranch", name)
	}

	head, err := s.Head()
	if err == nil && head.Attached && head.Branch == name && !force {
		return oxerr.New(oxerr.KindBasic, "refstore.DeleteBranch", name,
			fmt.Errorf("branch %q is the current HEAD target; use force to delete", name))
	}

	return os.Remove(s.branchPath(name))
}

// ListBranches returns all branch names.
func (s *Store) ListBranches() ([]string, error) {
	entries, err := os.ReadDir(s.refsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oxerr.Wrap("refstore.ListBranches", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Head returns the current HEAD state, resolving an attached branch to
// its target commit id.
func (s *Store) Head() (Head, error) {
	data, err := os.ReadFile(s.headFile)
	if err != nil {
		return Head{}, oxerr.Wrap("refstore.Head", err)
	}
	content := strings.TrimSpace(string(data))

	if strings.HasPrefix(content, headRefPrefix) {
		branch := strings.TrimPrefix(content, headRefPrefix)
		commitID, err := s.GetBranch(branch)
		if err != nil && !oxerr.Is(err, oxerr.KindNotFound) {
			return Head{}, err
		}
		return Head{Attached: true, Branch: branch, CommitID: commitID}, nil
	}
	return Head{Attached: false, CommitID: content}, nil
}

// InitializeHead creates HEAD attached to defaultBranch if it doesn't
// already exist.
func (s *Store) InitializeHead(defaultBranch string) error {
	if _, err := os.Stat(s.headFile); err == nil {
		return nil
	}
	return writeFileAtomic(s.headFile, headRefPrefix+defaultBranch+"\n")
}

// SetHeadToBranch attaches HEAD to an existing branch.
func (s *Store) SetHeadToBranch(name string) error {
	if !s.BranchExists(name) {
		return oxerr.NotFound("refstore.SetHeadToBranch", name)
	}
	return writeFileAtomic(s.headFile, headRefPrefix+name+"\n")
}

// SetHeadToCommit detaches HEAD at commitID.
func (s *Store) SetHeadToCommit(commitID string) error {
	return writeFileAtomic(s.headFile, commitID+"\n")
}

// Advance moves HEAD forward to commitID: if attached, advances the
// branch; if detached, moves HEAD itself (spec §4.7).
func (s *Store) Advance(commitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, err := s.Head()
	if err != nil {
		return err
	}
	if head.Attached {
		if s.BranchExists(head.Branch) {
			return s.UpdateBranch(head.Branch, commitID)
		}
		return s.CreateBranch(head.Branch, commitID)
	}
	return s.SetHeadToCommit(commitID)
}
