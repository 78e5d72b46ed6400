package addonkit

import (
	"context"
	"errors"
)

// scanner holds the state of one top-level Scan call.
type scanner struct {
	e      *Engine
	ctx    context.Context
	sc     *ScanContext
	pwErrs []error
}

// Scan lists the archive at archivePath and returns the installable packages
// it contains, including packages inside nested archives up to the depth
// budget of sc (a nil sc gets a fresh context).
//
// Password failures of the top-level archive abort the scan. Password
// failures of nested archives do not: the items found elsewhere are
// returned together with the joined *NestedPasswordRequiredError values.
func (e *Engine) Scan(ctx context.Context, archivePath string, sc *ScanContext, password string) ([]DetectedItem, error) {
	if sc == nil {
		sc = e.newContext()
	}
	var key string
	if e.cache != nil {
		if k, err := scanCacheKey(defaultFS, archivePath, password, sc); err == nil {
			if items, ok := e.cache.get(k); ok {
				e.log.Debug("scan cache hit", "archive", archivePath)
				return items, nil
			}
			key = k
		}
	}

	s := &scanner{e: e, ctx: ctx, sc: sc}
	path := NormalizeEntryPath(archivePath)
	items, err := s.scanArchive(path, path, DetectFormat(path), password, true)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []DetectedItem{}
	}
	pwErr := errors.Join(s.pwErrs...)
	if pwErr == nil && key != "" {
		e.cache.put(key, items)
	}
	e.log.Debug("scan finished", "archive", path, "items", len(items), "password_errors", len(s.pwErrs))
	return items, pwErr
}

// scanArchive scans the archive stored at disk. logical is the path callers
// know it by, used for nested password lookups and error reports.
func (s *scanner) scanArchive(disk, logical string, format ArchiveFormat, password string, top bool) ([]DetectedItem, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	pa, err := prepareForRead(defaultFS, s.e.tempDir, disk, format)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pa.Close() }()

	if top && len(pa.Volumes) == 1 {
		if sniffed := contentFormat(defaultFS, pa.Path, pa.Format); sniffed != pa.Format {
			s.e.log.Warn("archive content does not match its extension", "archive", pa.Source, "extension", pa.Format, "content", sniffed)
			pa.Format = sniffed
		}
	}

	entries, err := listEntries(pa, password)
	if err != nil {
		return nil, err
	}
	if err := verifyPassword(pa, entries, password); err != nil {
		return nil, err
	}
	s.sc.stats.Archives++
	s.e.progress.EmitProgress(logical, PhaseScan)
	if len(entries) == 0 {
		return nil, nil
	}

	items, claimed := s.detect(pa, entries, password, archiveStem(logical))
	if s.sc.CanRecurse() {
		nested, err := s.scanNested(pa, logical, entries, claimed, password)
		if err != nil {
			return nil, err
		}
		items = append(items, nested...)
	}
	for i := range items {
		items[i].ArchivePath = disk
	}
	return items, nil
}
