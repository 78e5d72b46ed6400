package addonkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/nwaples/rardecode"

	"github.com/javi11/addonkit/internal/rarhdr"
)

// listRar reads file headers without decoding. When the headers themselves
// are encrypted the decoder lists the archive with the password instead.
func listRar(pa *PreparedArchive, password string) ([]Entry, error) {
	files, err := rarhdr.List(rarhdr.DefaultFS, pa.Volumes)
	switch {
	case errors.Is(err, rarhdr.ErrHeadersEncrypted):
		if password == "" {
			return nil, &PasswordRequiredError{Archive: pa.Source, Err: err}
		}
		return listRarDecode(pa, password, true)
	case err != nil:
		// unusual layouts the header walker rejects may still decode
		return listRarDecode(pa, password, false)
	}
	out := make([]Entry, 0, len(files))
	for _, f := range files {
		name := cleanInternal(f.Name)
		if name == "" {
			continue
		}
		out = append(out, Entry{Name: name, IsDir: f.IsDir, Size: f.Size, Encrypted: f.Encrypted})
	}
	return out, nil
}

// rarEncryption reports the encrypted entries of a RAR set, or that its
// headers are encrypted and nothing is known per entry.
func rarEncryption(pa *PreparedArchive) (map[string]bool, bool) {
	files, err := rarhdr.List(rarhdr.DefaultFS, pa.Volumes)
	if errors.Is(err, rarhdr.ErrHeadersEncrypted) {
		return nil, true
	}
	enc := make(map[string]bool)
	for _, f := range files {
		if f.Encrypted {
			enc[cleanInternal(f.Name)] = true
		}
	}
	return enc, false
}

func listRarDecode(pa *PreparedArchive, password string, encrypted bool) ([]Entry, error) {
	rc, err := rardecode.OpenReader(pa.Path, password)
	if err != nil {
		return nil, rarError(pa, "", password, err)
	}
	defer func() { _ = rc.Close() }()
	var out []Entry
	for {
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			if encrypted && password != "" {
				return nil, &PasswordRequiredError{Archive: pa.Source, BadPassword: true, Err: err}
			}
			return nil, rarError(pa, "", password, err)
		}
		name := cleanInternal(h.Name)
		if name == "" {
			continue
		}
		out = append(out, Entry{Name: name, IsDir: h.IsDir, Size: h.UnPackedSize, Encrypted: encrypted})
	}
}

func rarError(pa *PreparedArchive, entry, password string, err error) error {
	if isPasswordMessage(err) {
		return &PasswordRequiredError{Archive: pa.Source, Entry: entry, BadPassword: password != "", Err: err}
	}
	if entry != "" {
		err = fmt.Errorf("%s: %w", entry, err)
	}
	return corrupt(pa.Source, err)
}

// withRarEntry positions the decoder on the named entry and hands it to fn.
func withRarEntry(pa *PreparedArchive, name, password string, fn func(io.Reader) error) error {
	rc, err := rardecode.OpenReader(pa.Path, password)
	if err != nil {
		return rarError(pa, "", password, err)
	}
	defer func() { _ = rc.Close() }()
	for {
		h, err := rc.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %s: %w", pa.Source, name, fs.ErrNotExist)
		}
		if err != nil {
			return rarError(pa, "", password, err)
		}
		if cleanInternal(h.Name) == name {
			return fn(rc)
		}
	}
}

func readRarEntry(pa *PreparedArchive, name, password string) ([]byte, error) {
	var data []byte
	err := withRarEntry(pa, name, password, func(r io.Reader) error {
		var rerr error
		data, rerr = io.ReadAll(io.LimitReader(r, maxEntryRead))
		if rerr != nil {
			return rarError(pa, name, password, rerr)
		}
		return nil
	})
	return data, err
}

func verifyRar(pa *PreparedArchive, entries []Entry, password string) error {
	sample, ok := smallestEncrypted(entries)
	if !ok {
		return nil
	}
	if password == "" {
		return &PasswordRequiredError{Archive: pa.Source, Entry: sample.Name}
	}
	return withRarEntry(pa, sample.Name, password, func(r io.Reader) error {
		// the checksum is only verified once the entry is fully read
		if _, err := io.Copy(io.Discard, r); err != nil {
			return &PasswordRequiredError{Archive: pa.Source, Entry: sample.Name, BadPassword: true, Err: err}
		}
		return nil
	})
}
