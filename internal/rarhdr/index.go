package rarhdr

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// IndexVolumes parses each volume to collect its file headers. Stops at first error.
func IndexVolumes(fsys Opener, volPaths []string) ([]*Volume, error) {
	res := make([]*Volume, 0, len(volPaths))
	for _, p := range volPaths {
		v, err := indexSingle(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		res = append(res, v)
		if v.HeadersEncrypted {
			// later volumes cannot be walked either
			break
		}
	}
	return res, nil
}

func indexSingle(fsys Opener, path string) (*Volume, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var fileSize int64
	if st, err := f.Stat(); err == nil {
		fileSize = st.Size()
	}
	br := bufio.NewReader(f)
	version, sigOffset, err := DetectSignature(br)
	if err != nil {
		return nil, err
	}
	if _, err := br.Discard(int(sigOffset)); err != nil {
		return nil, fmt.Errorf("skip to signature offset %d: %w", sigOffset, err)
	}
	w := &walker{br: br, src: f, pos: sigOffset, size: fileSize}
	if s, ok := f.(io.Seeker); ok {
		w.seeker = s
	}
	vi := &Volume{Path: path, Version: version}
	switch version {
	case VersionRar3:
		perr := parseRar3(w, vi)
		if len(vi.Blocks) > 0 || vi.HeadersEncrypted || (perr == nil && w.mainSeen) {
			if perr != nil && len(vi.Blocks) == 0 {
				return nil, perr
			}
			return vi, nil
		}
		// nothing parsed: try the lenient scanner for RAR 1.5/2.x layouts
		if lerr := parseRarLegacy(fsys, path, vi, sigOffset); lerr != nil {
			if perr != nil {
				return nil, perr
			}
			return nil, lerr
		}
	case VersionRar5:
		if err := parseRar5(w, vi); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported/unknown version")
	}
	return vi, nil
}

// DetectSignature peeks at the first 1KB (SFX stubs may precede the
// signature) without consuming it and returns the version and offset.
func DetectSignature(br *bufio.Reader) (string, int64, error) {
	buf, _ := br.Peek(1024)
	for i := 0; i+len(sigV3) <= len(buf); i++ {
		if bytes.HasPrefix(buf[i:], sigV5) {
			return VersionRar5, int64(i), nil
		}
		if bytes.HasPrefix(buf[i:], sigV3) {
			return VersionRar3, int64(i), nil
		}
	}
	return VersionUnknown, 0, ErrNoSignature
}

// walker tracks the absolute position while reading headers and skipping data.
type walker struct {
	br     *bufio.Reader
	src    io.Reader
	seeker io.Seeker
	pos    int64
	size   int64

	mainSeen bool
}

func (w *walker) read(p []byte) error {
	n, err := io.ReadFull(w.br, p)
	w.pos += int64(n)
	return err
}

func (w *walker) atEnd() bool { return w.size > 0 && w.pos >= w.size }

// skip advances n bytes, preferring a seek over reading through the data.
func (w *walker) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if w.seeker != nil {
		// Drain buffered bytes first; they are part of the section already read ahead.
		if b := w.br.Buffered(); b > 0 {
			if int64(b) > n {
				b = int(n)
			}
			if _, err := w.br.Discard(b); err != nil {
				return fmt.Errorf("drain buffer before seek: %w", err)
			}
			w.pos += int64(b)
			n -= int64(b)
		}
		if n == 0 {
			return nil
		}
		if _, err := w.seeker.Seek(n, io.SeekCurrent); err == nil {
			w.pos += n
			w.br.Reset(w.src)
			return nil
		}
		// If seek fails we fall through to CopyN for remaining bytes.
	}
	copied, err := io.CopyN(io.Discard, w.br, n)
	w.pos += copied
	if err != nil {
		return fmt.Errorf("discard data: %w", err)
	}
	return nil
}
