package addonkit

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeka/zip"
)

type zipEntry struct {
	name     string
	body     string
	password string
}

func dir(name string) zipEntry              { return zipEntry{name: name} }
func file(name, body string) zipEntry       { return zipEntry{name: name, body: body} }
func locked(name, body, pw string) zipEntry { return zipEntry{name: name, body: body, password: pw} }

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		var (
			dst io.Writer
			err error
		)
		if e.password != "" {
			dst, err = w.Encrypt(e.name, e.password, zip.AES256Encryption)
		} else {
			dst, err = w.Create(e.name)
		}
		require.NoError(t, err)
		if !strings.HasSuffix(e.name, "/") {
			_, err = io.WriteString(dst, e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, path string, entries ...zipEntry) string {
	t.Helper()
	writeBytes(t, path, buildZip(t, entries...))
	return path
}

func writeBytes(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// quietEngine logs nothing and uses a private temp dir.
func quietEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithLogger(newLogger(io.Discard, 0)), WithTempDir(t.TempDir())}
	return NewEngine(append(base, opts...)...)
}

// memFS is an in-memory FileSystem keyed by full path.
type memFS map[string][]byte

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

type memFile struct {
	*bytes.Reader
	info memInfo
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memFile) Close() error               { return nil }

func (m memFS) Stat(p string) (fs.FileInfo, error) {
	b, ok := m[p]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return memInfo{name: filepath.Base(p), size: int64(len(b))}, nil
}

func (m memFS) Open(p string) (fs.File, error) {
	b, ok := m[p]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	return &memFile{Reader: bytes.NewReader(b), info: memInfo{name: filepath.Base(p), size: int64(len(b))}}, nil
}

func (m memFS) ReadDir(d string) ([]fs.DirEntry, error) {
	var out []fs.DirEntry
	for p, b := range m {
		if filepath.Dir(p) == d {
			out = append(out, fs.FileInfoToDirEntry(memInfo{name: filepath.Base(p), size: int64(len(b))}))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func memOf(names ...string) memFS {
	m := memFS{}
	for _, n := range names {
		m[n] = []byte(n)
	}
	return m
}
