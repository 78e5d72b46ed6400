package addonkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// destError marks a failure on the destination side of a copy so it is not
// mistaken for a codec or password failure.
type destError struct{ err error }

func (e *destError) Error() string { return e.err.Error() }
func (e *destError) Unwrap() error { return e.err }

// destFailure returns the destination failure inside err with the target
// path added, or nil when err did not come from the destination.
func destFailure(err error, target string) error {
	var de *destError
	if errors.As(err, &de) {
		return fmt.Errorf("write %s: %w", target, de.err)
	}
	return nil
}

type destWriter struct{ f *os.File }

func (w destWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		err = &destError{err}
	}
	return n, err
}

// writeFile streams r into target, reporting bytes to sink. The written
// file always ends up owner-writable.
func writeFile(target string, r io.Reader, mode fs.FileMode, sink ProgressSink) (n int64, err error) {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	perm |= 0o200
	if fi, serr := os.Lstat(target); serr == nil && fi.Mode().IsRegular() && fi.Mode().Perm()&0o200 == 0 {
		_ = os.Chmod(target, fi.Mode().Perm()|0o200)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, &destError{err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &destError{cerr}
		}
		if err == nil {
			if cerr := os.Chmod(target, perm); cerr != nil {
				err = &destError{cerr}
			}
		}
	}()
	return io.Copy(destWriter{f}, io.TeeReader(r, progressWriter{sink: sink}))
}
