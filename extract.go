package addonkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// extractJob is one pass over an archive writing a selection of entries
// under dest. Counters are shared by the workers of the pass.
type extractJob struct {
	archive  *PreparedArchive
	password string
	dest     string
	// mapName maps a slash-separated entry name to a path relative to dest.
	// ok is false for entries outside the selection; "" selects nothing.
	mapName func(name string) (rel string, ok bool)
	workers int
	sink    ProgressSink
	log     *log.Logger

	// skipBroken records entries the codec cannot decode in failed and
	// carries on with the rest of the pass.
	skipBroken bool

	mu     sync.Mutex
	failed map[string]error

	files  atomic.Int64
	dirs   atomic.Int64
	bytes  atomic.Int64
	unsafe atomic.Int64
}

func (j *extractJob) stats() *ExtractStats {
	return &ExtractStats{
		Files:         int(j.files.Load()),
		Dirs:          int(j.dirs.Load()),
		Bytes:         j.bytes.Load(),
		UnsafeSkipped: int(j.unsafe.Load()),
	}
}

// target resolves an entry to its destination, counting entries that would
// land outside dest.
func (j *extractJob) target(name string) (string, bool) {
	rel, ok := j.mapName(strings.TrimSuffix(strings.ReplaceAll(name, "\\", "/"), "/"))
	if !ok || rel == "" {
		return "", false
	}
	clean, err := sanitizeRelPath(rel)
	if err == nil && clean != "" {
		var p string
		if p, err = safeJoin(j.dest, clean); err == nil {
			return p, true
		}
	}
	if err != nil {
		j.skipUnsafe(name)
	}
	return "", false
}

func (j *extractJob) skipUnsafe(name string) {
	j.unsafe.Add(1)
	j.log.Debug("skipping unsafe entry", "archive", j.archive.Source, "entry", name)
}

// entryFailed returns err unless the job skips broken entries and err is a
// codec or password failure; then the entry is recorded and its partial
// output removed. Destination failures always stop the pass.
func (j *extractJob) entryFailed(name, target string, err error) error {
	if !j.skipBroken || !(errors.Is(err, ErrCorruptArchive) || errors.Is(err, ErrPasswordRequired)) {
		return err
	}
	if target != "" {
		_ = os.Remove(target)
	}
	j.mu.Lock()
	if j.failed == nil {
		j.failed = make(map[string]error)
	}
	j.failed[cleanInternal(name)] = err
	j.mu.Unlock()
	j.log.Debug("skipping undecodable entry", "archive", j.archive.Source, "entry", name, "err", err)
	return nil
}

// failure returns the recorded failure for an entry, if any.
func (j *extractJob) failure(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failed[name]
}

func (j *extractJob) fileDone(name string, n int64) {
	j.files.Add(1)
	j.bytes.Add(n)
	j.sink.EmitProgress(name, PhaseExtract)
}

// mkdirs creates dirs in sorted order, once each.
func (j *extractJob) mkdirs(dirs []string) error {
	seen := make(map[string]bool, len(dirs))
	slices.Sort(dirs)
	for _, d := range dirs {
		if seen[d] || d == j.dest {
			continue
		}
		seen[d] = true
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
		j.dirs.Add(1)
	}
	return nil
}

// prefixMapper selects the entries under root keeping their full names.
func prefixMapper(root string) func(string) (string, bool) {
	under := subtreeMapper(root)
	return func(name string) (string, bool) {
		if _, ok := under(name); !ok {
			return "", false
		}
		return name, true
	}
}

// subtreeMapper selects the entries under root and strips it.
func subtreeMapper(root string) func(string) (string, bool) {
	root = cleanInternal(root)
	return func(name string) (string, bool) {
		if root == "" {
			return name, true
		}
		if name == root {
			return "", true
		}
		if strings.HasPrefix(name, root+"/") {
			return name[len(root)+1:], true
		}
		return "", false
	}
}

// namesMapper selects exactly the given internal paths, keeping them as is.
func namesMapper(names map[string]bool) func(string) (string, bool) {
	return func(name string) (string, bool) {
		clean := cleanInternal(name)
		if !names[clean] {
			return "", false
		}
		return clean, true
	}
}

func (e *Engine) newJob(pa *PreparedArchive, password, dest string, mapName func(string) (string, bool)) *extractJob {
	return &extractJob{
		archive:  pa,
		password: password,
		dest:     dest,
		mapName:  mapName,
		workers:  e.workers,
		sink:     e.progress,
		log:      e.log,
	}
}

func runJob(ctx context.Context, j *extractJob) error {
	switch j.archive.Format {
	case FormatZip:
		return extractZip(ctx, j)
	case FormatSevenZip:
		return extractSevenZip(ctx, j)
	case FormatRar:
		return extractRar(ctx, j)
	}
	return fmt.Errorf("%s: %w", j.archive.Source, ErrUnsupportedFormat)
}

// Extract installs item under destination: the package subtree is written
// relative to its root. Packages inside nested archives are reached by
// replaying the item's chain through temporary directories; nested archive
// passwords come from sc. Temporary data is removed on every path.
func (e *Engine) Extract(ctx context.Context, item DetectedItem, destination string, sc *ScanContext, password string) (*ExtractStats, error) {
	if sc == nil {
		sc = e.newContext()
	}
	dest, err := filepath.Abs(destination)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	archive := NormalizeEntryPath(item.ArchivePath)
	format := contentFormat(defaultFS, archive, DetectFormat(archive))
	root := item.InternalRoot
	logical := item.ArchivePath
	pw := password
	var parent, nested string // set once archive is a nested one

	var temps []string
	defer func() {
		for _, t := range temps {
			if rerr := os.RemoveAll(t); rerr != nil {
				e.log.Warn("failed to remove temp dir", "path", t, "err", rerr)
			}
		}
	}()

	if item.Chain != nil {
		root = item.Chain.FinalRoot
		for _, hop := range item.Chain.Hops {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tmp, err := os.MkdirTemp(e.tempDir, "addonkit-hop-*")
			if err != nil {
				return nil, fmt.Errorf("create temp dir: %w", err)
			}
			temps = append(temps, tmp)
			next, err := e.extractNested(ctx, archive, format, pw, hop.InternalPath, tmp)
			if err != nil {
				if parent != "" {
					err = asNestedPasswordError(err, parent, nested)
				}
				return nil, err
			}
			nestedPw, _ := sc.NestedPassword(logical, hop.InternalPath)
			parent, nested = logical, hop.InternalPath
			archive, format, pw = next, hop.Format, nestedPw
			logical = logical + "/" + hop.InternalPath
		}
	}

	stats, err := e.extractSubtree(ctx, archive, format, pw, root, dest)
	if err != nil {
		if parent != "" {
			err = asNestedPasswordError(err, parent, nested)
		}
		return nil, err
	}
	if stats.UnsafeSkipped > 0 {
		e.log.Warn("skipped unsafe entries", "archive", logical, "count", stats.UnsafeSkipped)
	}
	e.log.Debug("extracted", "archive", logical, "root", root, "files", stats.Files, "bytes", stats.Bytes)
	return stats, nil
}

// extractNested writes the volumes of the nested archive at internal into
// dir and returns the on-disk path of its first volume.
func (e *Engine) extractNested(ctx context.Context, archive string, format ArchiveFormat, password, internal, dir string) (string, error) {
	pa, err := prepareForRead(defaultFS, e.tempDir, archive, format)
	if err != nil {
		return "", err
	}
	defer func() { _ = pa.Close() }()
	entries, err := listEntries(pa, password)
	if err != nil {
		return "", err
	}
	vols, err := DiscoverVolumesFS(newEntryFS(entries), internal)
	if err != nil {
		return "", fmt.Errorf("%s: nested %s: %w", pa.Source, internal, err)
	}
	names := make(map[string]bool, len(vols))
	for _, v := range vols {
		names[filepath.ToSlash(v)] = true
	}
	j := e.newJob(pa, password, dir, namesMapper(names))
	j.workers = 1
	j.sink = NopProgress{}
	if err := runJob(ctx, j); err != nil {
		return "", err
	}
	first, err := safeJoin(dir, cleanInternal(internal))
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(first); err != nil {
		return "", fmt.Errorf("%s: nested %s: %w", pa.Source, internal, err)
	}
	return first, nil
}

func (e *Engine) extractSubtree(ctx context.Context, archive string, format ArchiveFormat, password, root, dest string) (*ExtractStats, error) {
	pa, err := prepareForRead(defaultFS, e.tempDir, archive, format)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pa.Close() }()

	if format != FormatRar {
		j := e.newJob(pa, password, dest, subtreeMapper(root))
		if err := runJob(ctx, j); err != nil {
			return nil, err
		}
		return j.stats(), nil
	}

	// RAR decodes front to back only: unpack the subtree under its full
	// name in one pass, then copy it out.
	tmp, err := os.MkdirTemp(e.tempDir, "addonkit-rar-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()
	j := e.newJob(pa, password, tmp, prefixMapper(root))
	j.sink = namesOnly{e.progress}
	if err := runJob(ctx, j); err != nil {
		return nil, err
	}
	src := tmp
	if r := cleanInternal(root); r != "" {
		if src, err = safeJoin(tmp, r); err != nil {
			return nil, err
		}
	}
	if fi, err := os.Stat(src); err != nil || !fi.IsDir() {
		if err == nil {
			err = fs.ErrNotExist
		}
		return nil, fmt.Errorf("%s: root %q: %w", pa.Source, root, err)
	}
	stats, err := CopyTree(ctx, src, dest, e.progress, e.workers)
	if err != nil {
		return nil, err
	}
	stats.UnsafeSkipped = int(j.unsafe.Load())
	return stats, nil
}

// namesOnly forwards progress events but not byte counts, so bytes are not
// counted twice when a staging pass precedes the copy.
type namesOnly struct{ ProgressSink }

func (namesOnly) AddBytes(uint64) {}
