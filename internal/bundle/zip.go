package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// ZipDir packs dir into a zip at dest. Entries are rooted at the base name of
// dir ("<name>/..."). dest appears only once complete.
func ZipDir(dir, dest string) (err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".bundle-*.zip")
	if err != nil {
		return fmt.Errorf("create temp archive for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	root := filepath.Base(dir)
	if err := addDir(zw, dir, root); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("atomic rename for %s: %w", dest, err)
	}
	return nil
}

func addDir(zw *zip.Writer, dir, root string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := path.Join(root, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			hdr, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			_, err = zw.CreateHeader(hdr)
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return addFile(zw, p, name, info)
	})
}

func addFile(zw *zip.Writer, src, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
