package addonkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/bodgit/sevenzip"
)

// verifyReadBytes bounds how much of an entry is decoded to test a 7-Zip password.
const verifyReadBytes = 64 << 10

func openSevenZip(pa *PreparedArchive, password string) (*sevenzip.ReadCloser, error) {
	var (
		r   *sevenzip.ReadCloser
		err error
	)
	if password != "" {
		r, err = sevenzip.OpenReaderWithPassword(pa.Path, password)
	} else {
		r, err = sevenzip.OpenReader(pa.Path)
	}
	if err != nil {
		return nil, sevenZipError(pa, "", password, err)
	}
	return r, nil
}

// sevenZipError classifies a codec failure. The library marks errors that
// involve an encrypted folder or header.
func sevenZipError(pa *PreparedArchive, entry, password string, err error) error {
	var re *sevenzip.ReadError
	if (errors.As(err, &re) && re.Encrypted) || isPasswordMessage(err) {
		return &PasswordRequiredError{Archive: pa.Source, Entry: entry, BadPassword: password != "", Err: err}
	}
	if entry != "" {
		err = fmt.Errorf("%s: %w", entry, err)
	}
	return corrupt(pa.Source, err)
}

func listSevenZip(pa *PreparedArchive, password string) ([]Entry, error) {
	r, err := openSevenZip(pa, password)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	out := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		name := cleanInternal(f.Name)
		if name == "" {
			continue
		}
		out = append(out, Entry{Name: name, IsDir: f.FileInfo().IsDir(), Size: int64(f.UncompressedSize)})
	}
	return out, nil
}

func readSevenZipEntry(pa *PreparedArchive, name, password string) ([]byte, error) {
	r, err := openSevenZip(pa, password)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if cleanInternal(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, sevenZipError(pa, name, password, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntryRead))
		_ = rc.Close()
		if err != nil {
			return nil, sevenZipError(pa, name, password, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %s: %w", pa.Source, name, fs.ErrNotExist)
}

// verifySevenZip decodes the start of the first non-empty file. Listings do
// not expose per-entry encryption, so a failure with a password supplied
// counts as a wrong password.
func verifySevenZip(pa *PreparedArchive, password string) error {
	r, err := openSevenZip(pa, password)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.UncompressedSize == 0 {
			continue
		}
		name := cleanInternal(f.Name)
		rc, err := f.Open()
		if err == nil {
			_, err = io.CopyN(io.Discard, rc, verifyReadBytes)
			_ = rc.Close()
			if errors.Is(err, io.EOF) {
				err = nil
			}
		}
		if err == nil {
			return nil
		}
		if password != "" {
			return &PasswordRequiredError{Archive: pa.Source, Entry: name, BadPassword: true, Err: err}
		}
		return sevenZipError(pa, name, password, err)
	}
	return nil
}
