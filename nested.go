package addonkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"
)

// entryFS presents an archive listing as a FileSystem so volume discovery
// can run on internal paths. Files are listed but cannot be opened.
type entryFS struct {
	files map[string]Entry
	dirs  map[string][]fs.DirEntry
}

func newEntryFS(entries []Entry) *entryFS {
	e := &entryFS{files: make(map[string]Entry), dirs: make(map[string][]fs.DirEntry)}
	for _, en := range entries {
		if en.IsDir {
			continue
		}
		name := cleanInternal(en.Name)
		e.files[name] = en
		dir := path.Dir(name)
		e.dirs[dir] = append(e.dirs[dir], fs.FileInfoToDirEntry(entryInfo{en}))
	}
	return e
}

func (e *entryFS) key(p string) string { return path.Clean(filepath.ToSlash(p)) }

func (e *entryFS) Stat(name string) (os.FileInfo, error) {
	if en, ok := e.files[e.key(name)]; ok {
		return entryInfo{en}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (e *entryFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
}

func (e *entryFS) ReadDir(name string) ([]os.DirEntry, error) {
	d, ok := e.dirs[e.key(name)]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return d, nil
}

type entryInfo struct{ e Entry }

func (i entryInfo) Name() string       { return path.Base(cleanInternal(i.e.Name)) }
func (i entryInfo) Size() int64        { return i.e.Size }
func (i entryInfo) Mode() fs.FileMode  { return 0o444 }
func (i entryInfo) ModTime() time.Time { return time.Time{} }
func (i entryInfo) IsDir() bool        { return false }
func (i entryInfo) Sys() any           { return nil }

// nestedGroups finds the nested archives of a listing outside the claimed
// prefixes, keyed by canonical first volume, each with its full volume list.
func (s *scanner) nestedGroups(logical string, entries []Entry, claimed []string) ([]string, map[string][]string) {
	efs := newEntryFS(entries)
	groups := make(map[string][]string)
	var order []string
	for _, en := range entries {
		name := cleanInternal(en.Name)
		if en.IsDir || DetectFormat(name) == FormatUnknown || isClaimed(name, claimed) {
			continue
		}
		canon := filepath.ToSlash(NormalizeEntryPathFS(efs, name))
		if _, done := groups[canon]; done {
			continue
		}
		vols, err := DiscoverVolumesFS(efs, canon)
		if err != nil {
			groups[canon] = nil
			s.sc.stats.NestedSkipped++
			s.e.log.Warn("skipping nested archive with missing volumes", "parent", logical, "nested", canon, "err", err)
			continue
		}
		for i, v := range vols {
			vols[i] = filepath.ToSlash(v)
		}
		groups[canon] = vols
		order = append(order, canon)
	}
	sort.Strings(order)
	return order, groups
}

// scanNested unpacks every nested archive of pa in one sequential pass and
// scans them one by one. A nested set that fails to decode is skipped on its
// own; password failures are collected on the scanner. Cancellation and
// failures writing the staging area are returned.
func (s *scanner) scanNested(pa *PreparedArchive, logical string, entries []Entry, claimed []string, password string) ([]DetectedItem, error) {
	order, groups := s.nestedGroups(logical, entries, claimed)
	if len(order) == 0 {
		return nil, nil
	}
	tmp, err := os.MkdirTemp(s.e.tempDir, "addonkit-nested-*")
	if err != nil {
		return nil, fmt.Errorf("stage nested archives of %s: %w", logical, err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	names := make(map[string]bool)
	for _, canon := range order {
		for _, v := range groups[canon] {
			names[v] = true
		}
	}
	j := s.e.newJob(pa, password, tmp, namesMapper(names))
	j.workers = 1
	j.sink = NopProgress{}
	j.skipBroken = true
	jobErr := runJob(s.ctx, j)
	if jobErr != nil {
		if cerr := s.ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if !errors.Is(jobErr, ErrCorruptArchive) && !errors.Is(jobErr, ErrPasswordRequired) {
			return nil, fmt.Errorf("stage nested archives of %s: %w", logical, jobErr)
		}
		s.e.log.Warn("nested staging stopped early", "parent", logical, "err", jobErr)
	}

	var out []DetectedItem
	for _, canon := range order {
		if err := stagedFailure(j, tmp, groups[canon], jobErr); err != nil {
			s.skipNested(logical, canon, err)
			continue
		}
		items, err := s.scanOneNested(tmp, logical, canon)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// stagedFailure reports why a nested set is not fully on disk, or nil when
// every volume was written.
func stagedFailure(j *extractJob, tmp string, vols []string, jobErr error) error {
	for _, v := range vols {
		if err := j.failure(v); err != nil {
			return err
		}
		p, err := safeJoin(tmp, v)
		if err != nil {
			return err
		}
		if _, err := os.Stat(p); err != nil {
			if jobErr != nil {
				return jobErr
			}
			return err
		}
	}
	return nil
}

// skipNested accounts for a nested archive that could not be scanned.
// Password failures are kept for the caller, everything else is counted.
func (s *scanner) skipNested(logical, canon string, err error) {
	if errors.Is(err, ErrPasswordRequired) {
		s.pwErrs = append(s.pwErrs, asNestedPasswordError(err, logical, canon))
		s.e.log.Info("nested archive needs a password", "parent", logical, "nested", canon)
		return
	}
	s.sc.stats.NestedSkipped++
	s.e.log.Warn("skipping unreadable nested archive", "parent", logical, "nested", canon, "err", err)
}

func (s *scanner) scanOneNested(tmp, logical, canon string) ([]DetectedItem, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	disk, err := safeJoin(tmp, canon)
	if err != nil {
		s.sc.stats.NestedSkipped++
		return nil, nil
	}
	format := DetectFormat(canon)
	pw, _ := s.sc.NestedPassword(logical, canon)
	items, err := s.scanScoped(NestedArchiveInfo{InternalPath: canon, Password: pw, Format: format}, disk, logical)
	switch {
	case err == nil:
	case s.ctx.Err() != nil:
		return nil, s.ctx.Err()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		s.skipNested(logical, canon, err)
		return nil, nil
	}

	hop := ArchiveHop{InternalPath: canon, Format: format}
	stem := archiveStem(canon)
	for i := range items {
		items[i] = foldHop(items[i], hop, stem)
	}
	return items, nil
}

func (s *scanner) scanScoped(info NestedArchiveInfo, disk, parent string) ([]DetectedItem, error) {
	s.sc.PushArchive(info)
	defer s.sc.PopArchive()
	return s.scanArchive(disk, parent+"/"+info.InternalPath, info.Format, info.Password, false)
}

// foldHop moves an item found inside a nested archive up one level: the hop
// is prepended to its chain and its root becomes the chain's final root.
func foldHop(it DetectedItem, hop ArchiveHop, stem string) DetectedItem {
	chain := &ExtractionChain{Hops: []ArchiveHop{hop}, FinalRoot: it.InternalRoot}
	if it.Chain != nil {
		chain.Hops = append(chain.Hops, it.Chain.Hops...)
		chain.FinalRoot = it.Chain.FinalRoot
	}
	if it.Chain == nil && chain.FinalRoot == "" {
		it.DisplayName = stem
	}
	it.Chain = chain
	it.InternalRoot = ""
	return it
}
