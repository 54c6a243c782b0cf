package repo

import (
	"fmt"
	"os"

	"github.com/outpostml/dvc/internal/oxerr"
)

// lockFile is the repo-level mutator lock (spec §5): at most one mutating
// open may hold it at a time; acquisition is scoped to the operation and
// released on all exit paths, including failures, via Close/release.
type lockFile struct {
	path string
	f    *os.File
}

// acquireLock creates path exclusively, failing if another process
// already holds it.
func acquireLock(path string) (*lockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, oxerr.New(oxerr.KindAlreadyExists, "repo.acquireLock", path, err)
		}
		return nil, oxerr.Wrap("repo.acquireLock", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &lockFile{path: path, f: f}, nil
}

func (l *lockFile) release() error {
	if l.f == nil {
		return nil
	}
	l.f.Close()
	err := os.Remove(l.path)
	l.f = nil
	return err
}
