package addonkit

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// maxVolumes bounds probing when a directory cannot be listed.
const maxVolumes = 10000

// canonicalName maps a volume name of a split set to the name of its first
// volume. The second result is false when base is not part of a split naming scheme.
func canonicalName(base string) (string, bool) {
	if m := numberedRe.FindStringSubmatch(base); m != nil {
		return fmt.Sprintf("%s%0*d", m[1], len(m[2]), 1), true
	}
	if m := zipSplitRe.FindStringSubmatch(base); m != nil {
		return m[1] + ".zip", true
	}
	if m := rarPartRe.FindStringSubmatch(base); m != nil {
		return fmt.Sprintf("%s%0*d%s", m[1], len(m[2]), 1, m[3]), true
	}
	if m := rarOldRe.FindStringSubmatch(base); m != nil {
		return m[1] + ".rar", true
	}
	return base, false
}

// NormalizeEntryPath maps any volume of a split set to the canonical first
// volume the codec should open. Sibling lookup is case-insensitive; the input
// is returned unchanged when the canonical sibling does not exist.
func NormalizeEntryPath(path string) string {
	return NormalizeEntryPathFS(defaultFS, path)
}

// NormalizeEntryPathFS works like NormalizeEntryPath but uses provided FileSystem.
func NormalizeEntryPathFS(fsys FileSystem, path string) string {
	canon, split := canonicalName(filepath.Base(path))
	if !split {
		return path
	}
	if p, ok := newSiblingSet(fsys, filepath.Dir(path)).lookup(canon); ok {
		return p
	}
	return path
}

// DiscoverVolumes returns every volume of the set path belongs to, in codec
// order. Non-split archives yield a single element. A gap in the numbering is
// reported as ErrMissingVolume.
func DiscoverVolumes(path string) ([]string, error) {
	return DiscoverVolumesFS(defaultFS, path)
}

// DiscoverVolumesFS works like DiscoverVolumes but uses provided FileSystem (useful for virtual / in-memory tests).
func DiscoverVolumesFS(fsys FileSystem, path string) ([]string, error) {
	dir := filepath.Dir(path)
	sib := newSiblingSet(fsys, dir)
	canon, split := canonicalName(filepath.Base(path))
	first, ok := sib.lookup(canon)
	if !ok {
		if split {
			return nil, fmt.Errorf("%w: %s", ErrMissingVolume, filepath.Join(dir, canon))
		}
		if _, err := fsys.Stat(path); err != nil {
			return nil, err
		}
		first = path
	}
	base := filepath.Base(first)
	lower := strings.ToLower(base)

	if m := numberedRe.FindStringSubmatch(base); m != nil {
		return sib.sequence(m[1], "", len(m[2]), 1)
	}
	if m := rarPartRe.FindStringSubmatch(base); m != nil {
		return sib.sequence(m[1], m[3], len(m[2]), 1)
	}
	if strings.HasSuffix(lower, ".zip") {
		// classic spanned zip: .z01 .. .zNN come first, the .zip holds the central directory
		parts, err := sib.sequence(base[:len(base)-len(".zip")]+".z", "", 2, 1)
		if err != nil {
			return nil, err
		}
		return append(parts, first), nil
	}
	if strings.HasSuffix(lower, ".rar") {
		rest, err := sib.sequence(base[:len(base)-len(".rar")]+".r", "", 2, 0)
		if err != nil {
			return nil, err
		}
		return append([]string{first}, rest...), nil
	}
	return []string{first}, nil
}

// siblingSet answers case-insensitive name lookups within one directory.
type siblingSet struct {
	fsys  FileSystem
	dir   string
	names map[string]string // lower-case name -> actual name; nil when the directory could not be listed
}

func newSiblingSet(fsys FileSystem, dir string) *siblingSet {
	s := &siblingSet{fsys: fsys, dir: dir}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return s
	}
	s.names = make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		s.names[strings.ToLower(e.Name())] = e.Name()
	}
	return s
}

func (s *siblingSet) lookup(name string) (string, bool) {
	if s.names != nil {
		actual, ok := s.names[strings.ToLower(name)]
		if !ok {
			return "", false
		}
		return filepath.Join(s.dir, actual), true
	}
	p := filepath.Join(s.dir, name)
	if _, err := s.fsys.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// highest returns the largest n for which head+n+tail exists, or -1.
func (s *siblingSet) highest(head, tail string) int {
	head, tail = strings.ToLower(head), strings.ToLower(tail)
	best := -1
	for lower := range s.names {
		if len(lower) <= len(head)+len(tail) || !strings.HasPrefix(lower, head) || !strings.HasSuffix(lower, tail) {
			continue
		}
		digits := lower[len(head) : len(lower)-len(tail)]
		if strings.Trim(digits, "0123456789") != "" {
			continue
		}
		if n, err := strconv.Atoi(digits); err == nil && n > best {
			best = n
		}
	}
	return best
}

// sequence collects head+NNN+tail volumes starting at start. When the
// directory was listed, any hole below the highest present number is an error.
func (s *siblingSet) sequence(head, tail string, width, start int) ([]string, error) {
	last := s.highest(head, tail)
	var out []string
	for i := start; i < start+maxVolumes; i++ {
		name := fmt.Sprintf("%s%0*d%s", head, width, i, tail)
		p, ok := s.lookup(name)
		if !ok {
			if i <= last {
				return nil, fmt.Errorf("%w: %s", ErrMissingVolume, filepath.Join(s.dir, name))
			}
			break
		}
		out = append(out, p)
		if s.names != nil && i >= last {
			break
		}
	}
	return out, nil
}
