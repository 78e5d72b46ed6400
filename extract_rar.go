package addonkit

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nwaples/rardecode"

	"github.com/javi11/addonkit/internal/rarhdr"
)

// extractRar decodes the archive front to back, volumes included, writing
// the selected entries.
func extractRar(ctx context.Context, j *extractJob) error {
	encrypted, headers := rarEncryption(j.archive)
	if headers && j.password == "" {
		return &PasswordRequiredError{Archive: j.archive.Source, Err: rarhdr.ErrHeadersEncrypted}
	}
	rc, err := rardecode.OpenReader(j.archive.Path, j.password)
	if err != nil {
		return rarError(j.archive, "", j.password, err)
	}
	defer func() { _ = rc.Close() }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if headers {
				return &PasswordRequiredError{Archive: j.archive.Source, BadPassword: true, Err: err}
			}
			return rarError(j.archive, "", j.password, err)
		}
		target, ok := j.target(h.Name)
		if !ok {
			continue
		}
		if h.IsDir {
			if err := j.mkdirs([]string{target}); err != nil {
				return err
			}
			continue
		}
		if h.Mode()&fs.ModeSymlink != 0 {
			j.skipUnsafe(h.Name)
			continue
		}
		name := cleanInternal(h.Name)
		locked := headers || encrypted[name]
		if locked && j.password == "" {
			if err := j.entryFailed(h.Name, "", &PasswordRequiredError{Archive: j.archive.Source, Entry: name}); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &destError{err}
		}
		n, err := writeFile(target, rc, h.Mode(), j.sink)
		if err != nil {
			if derr := destFailure(err, target); derr != nil {
				return derr
			}
			ferr := rarError(j.archive, name, j.password, err)
			if locked {
				// a bad key only shows as a checksum mismatch
				ferr = &PasswordRequiredError{Archive: j.archive.Source, Entry: name, BadPassword: true, Err: err}
			}
			if err := j.entryFailed(h.Name, target, ferr); err != nil {
				return err
			}
			continue
		}
		j.fileDone(h.Name, n)
	}
}
