package addonkit

import (
	"path/filepath"
	"regexp"
	"strings"
)

// ArchiveFormat identifies one of the container formats the engine can read.
type ArchiveFormat int

const (
	FormatUnknown ArchiveFormat = iota
	FormatZip
	FormatSevenZip
	FormatRar
)

func (f ArchiveFormat) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatSevenZip:
		return "7z"
	case FormatRar:
		return "rar"
	}
	return "unknown"
}

// Split naming conventions, matched against a base name.
var (
	numberedRe = regexp.MustCompile(`(?i)^(.*\.(?:zip|7z)\.)(\d{3,})$`) // foo.zip.001, foo.7z.001
	zipSplitRe = regexp.MustCompile(`(?i)^(.*)\.z(\d{2,})$`)            // classic spanned zip: foo.z01
	rarPartRe  = regexp.MustCompile(`(?i)^(.*[_.-]part)(\d+)(\.rar)$`)  // foo.part01.rar
	rarOldRe   = regexp.MustCompile(`(?i)^(.*)\.r(\d{2,})$`)            // foo.r00
)

// DetectFormat derives the container format from a file name, including split
// volume names. It returns FormatUnknown when nothing matches.
func DetectFormat(path string) ArchiveFormat {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".zip"), zipSplitRe.MatchString(name):
		return FormatZip
	case strings.HasSuffix(name, ".7z"):
		return FormatSevenZip
	case strings.HasSuffix(name, ".rar"), rarOldRe.MatchString(name):
		return FormatRar
	}
	if m := numberedRe.FindStringSubmatch(name); m != nil {
		if strings.HasSuffix(m[1], ".7z.") {
			return FormatSevenZip
		}
		return FormatZip
	}
	return FormatUnknown
}

// archiveStem strips archive and volume extensions from a path's base name:
// "Pack.part01.rar" and "Pack.zip.003" both give "Pack".
func archiveStem(path string) string {
	name := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	if m := numberedRe.FindStringSubmatch(name); m != nil {
		name = strings.TrimSuffix(m[1], ".")
	}
	if m := rarPartRe.FindStringSubmatch(name); m != nil {
		return strings.TrimRight(m[1][:len(m[1])-len("part")], "._-")
	}
	if m := zipSplitRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	if m := rarOldRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	lower := strings.ToLower(name)
	for _, ext := range []string{".zip", ".7z", ".rar"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}
