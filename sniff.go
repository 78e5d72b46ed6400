package addonkit

import (
	"fmt"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// SniffFormat inspects the leading bytes of path and reports the container
// format they carry, or FormatUnknown.
func SniffFormat(path string) (ArchiveFormat, error) {
	return sniffFormat(defaultFS, path)
}

func sniffFormat(fsys FileSystem, path string) (ArchiveFormat, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer func() { _ = f.Close() }()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return FormatUnknown, fmt.Errorf("sniff %s: %w", path, err)
	}
	// zip based containers (jar, docx, ...) report zip as an ancestor
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is("application/zip"):
			return FormatZip, nil
		case m.Is("application/x-7z-compressed"):
			return FormatSevenZip, nil
		case m.Is("application/x-rar-compressed"):
			return FormatRar, nil
		}
	}
	return FormatUnknown, nil
}

// contentFormat prefers the sniffed format of a single-file archive whose
// content disagrees with its name. Split sets and unknown names keep format.
func contentFormat(fsys FileSystem, p string, format ArchiveFormat) ArchiveFormat {
	if format == FormatUnknown {
		return format
	}
	if _, split := canonicalName(filepath.Base(p)); split {
		return format
	}
	if sniffed, err := sniffFormat(fsys, p); err == nil && sniffed != FormatUnknown {
		return sniffed
	}
	return format
}
