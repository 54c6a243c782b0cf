package sync

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/outpostml/dvc/internal/oxerr"
)

// writeTarGz streams srcDir's contents as a gzip tar into w.
func writeTarGz(w io.Writer, srcDir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return oxerr.Wrap("sync.writeTarGz", err)
	}
	if err := tw.Close(); err != nil {
		return oxerr.Wrap("sync.writeTarGz", err)
	}
	return oxerr.Wrap("sync.writeTarGz", gz.Close())
}

// extractTarGz reads a gzip tar from r and writes its entries under destDir.
func extractTarGz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return oxerr.New(oxerr.KindSerialization, "sync.extractTarGz", "", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return oxerr.New(oxerr.KindSerialization, "sync.extractTarGz", "", err)
		}
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return oxerr.Wrap("sync.extractTarGz", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return oxerr.Wrap("sync.extractTarGz", err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return oxerr.Wrap("sync.extractTarGz", err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return oxerr.Wrap("sync.extractTarGz", err)
			}
			if err := f.Close(); err != nil {
				return oxerr.Wrap("sync.extractTarGz", err)
			}
		}
	}
}
