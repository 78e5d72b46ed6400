package addonkit

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// extractSevenZip makes one sequential pass in archive order; solid blocks
// make random access expensive.
func extractSevenZip(ctx context.Context, j *extractJob) error {
	r, err := openSevenZip(j.archive, j.password)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, ok := j.target(f.Name)
		if !ok {
			continue
		}
		fi := f.FileInfo()
		if fi.IsDir() {
			if err := j.mkdirs([]string{target}); err != nil {
				return err
			}
			continue
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			j.skipUnsafe(f.Name)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &destError{err}
		}
		rc, err := f.Open()
		if err != nil {
			if err := j.entryFailed(f.Name, "", sevenZipError(j.archive, cleanInternal(f.Name), j.password, err)); err != nil {
				return err
			}
			continue
		}
		n, err := writeFile(target, rc, fi.Mode(), j.sink)
		_ = rc.Close()
		if err != nil {
			if derr := destFailure(err, target); derr != nil {
				return derr
			}
			if err := j.entryFailed(f.Name, target, sevenZipError(j.archive, cleanInternal(f.Name), j.password, err)); err != nil {
				return err
			}
			continue
		}
		j.fileDone(f.Name, n)
	}
	return nil
}
