package addonkit

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// PreparedArchive is a read-ready handle on an archive. When the archive was
// split into volumes the codec cannot follow, Path points at a temporary
// concatenation owned by the handle and removed by Close.
type PreparedArchive struct {
	Path    string
	Format  ArchiveFormat
	Volumes []string
	// Source is the canonical archive path, used when reporting errors.
	Source string

	temp      string
	closeOnce sync.Once
	closeErr  error
}

// Concatenated reports whether Path is a temporary join of Volumes.
func (p *PreparedArchive) Concatenated() bool { return p.temp != "" }

// Close removes the temporary file, if any. It is safe to call more than once.
func (p *PreparedArchive) Close() error {
	p.closeOnce.Do(func() {
		if p.temp == "" {
			return
		}
		if err := os.Remove(p.temp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

// PrepareForRead resolves the volumes of path and, for split ZIP and 7-Zip
// sets, streams them in order into one temporary file. RAR sets are left as
// they are since the codec follows volume names itself.
func PrepareForRead(path string, format ArchiveFormat) (*PreparedArchive, error) {
	return prepareForRead(defaultFS, "", path, format)
}

func prepareForRead(fsys FileSystem, tempDir, path string, format ArchiveFormat) (*PreparedArchive, error) {
	switch format {
	case FormatZip, FormatSevenZip, FormatRar:
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	vols, err := DiscoverVolumesFS(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("discover volumes: %w", err)
	}
	pa := &PreparedArchive{Path: vols[0], Format: format, Volumes: vols, Source: NormalizeEntryPathFS(fsys, path)}
	if format == FormatRar || len(vols) == 1 {
		return pa, nil
	}
	tmp, err := os.CreateTemp(tempDir, "addonkit-*."+format.String())
	if err != nil {
		return nil, fmt.Errorf("create concat file: %w", err)
	}
	pa.temp = tmp.Name()
	pa.Path = tmp.Name()
	if err := concatVolumes(fsys, tmp, vols); err != nil {
		_ = tmp.Close()
		_ = pa.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = pa.Close()
		return nil, fmt.Errorf("close concat file: %w", err)
	}
	return pa, nil
}

func concatVolumes(fsys FileSystem, w io.Writer, vols []string) error {
	for _, v := range vols {
		f, err := fsys.Open(v)
		if err != nil {
			return fmt.Errorf("open volume: %w", err)
		}
		_, err = io.Copy(w, f)
		cerr := f.Close()
		if err != nil {
			return fmt.Errorf("copy volume %s: %w", v, err)
		}
		if cerr != nil {
			return fmt.Errorf("close volume %s: %w", v, cerr)
		}
	}
	return nil
}
