package addonkit

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/yeka/zip"
)

func listZip(pa *PreparedArchive) ([]Entry, error) {
	rc, err := zip.OpenReader(pa.Path)
	if err != nil {
		return nil, corrupt(pa.Source, err)
	}
	defer func() { _ = rc.Close() }()
	out := make([]Entry, 0, len(rc.File))
	for _, f := range rc.File {
		name := cleanInternal(f.Name)
		if name == "" {
			continue
		}
		out = append(out, Entry{
			Name:      name,
			IsDir:     f.FileInfo().IsDir(),
			Size:      int64(f.UncompressedSize64),
			Encrypted: f.IsEncrypted(),
		})
	}
	return out, nil
}

func readZipEntry(pa *PreparedArchive, name, password string) ([]byte, error) {
	rc, err := zip.OpenReader(pa.Path)
	if err != nil {
		return nil, corrupt(pa.Source, err)
	}
	defer func() { _ = rc.Close() }()
	for _, f := range rc.File {
		if cleanInternal(f.Name) != name {
			continue
		}
		var data []byte
		err := readZipFile(pa, f, password, func(r io.Reader) error {
			var rerr error
			data, rerr = io.ReadAll(io.LimitReader(r, maxEntryRead))
			return rerr
		})
		return data, err
	}
	return nil, fmt.Errorf("%s: %s: %w", pa.Source, name, fs.ErrNotExist)
}

func verifyZip(pa *PreparedArchive, entries []Entry, password string) error {
	sample, ok := smallestEncrypted(entries)
	if !ok {
		return nil
	}
	if password == "" {
		return &PasswordRequiredError{Archive: pa.Source, Entry: sample.Name}
	}
	rc, err := zip.OpenReader(pa.Path)
	if err != nil {
		return corrupt(pa.Source, err)
	}
	defer func() { _ = rc.Close() }()
	for _, f := range rc.File {
		if cleanInternal(f.Name) == sample.Name {
			return readZipFile(pa, f, password, func(r io.Reader) error {
				_, err := io.Copy(io.Discard, r)
				return err
			})
		}
	}
	return nil
}

// readZipFile opens f, applying password to encrypted entries, and hands
// the stream to fn. Any failure on an encrypted entry is reported as a
// password failure since ZipCrypto only shows a bad key as a checksum or
// inflate error.
func readZipFile(pa *PreparedArchive, f *zip.File, password string, fn func(io.Reader) error) error {
	if f.IsEncrypted() {
		if password == "" {
			return &PasswordRequiredError{Archive: pa.Source, Entry: cleanInternal(f.Name)}
		}
		f.SetPassword(password)
	}
	r, err := f.Open()
	if err == nil {
		err = fn(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		return nil
	}
	if derr := destFailure(err, f.Name); derr != nil {
		return derr
	}
	if f.IsEncrypted() {
		return &PasswordRequiredError{Archive: pa.Source, Entry: cleanInternal(f.Name), BadPassword: true, Err: err}
	}
	return corrupt(pa.Source, fmt.Errorf("%s: %w", f.Name, err))
}
