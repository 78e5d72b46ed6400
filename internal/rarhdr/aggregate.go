package rarhdr

import "fmt"

// Part is one slice of a (possibly split) file residing in a volume.
type Part struct {
	Path       string
	DataOffset int64
	PackedSize int64
}

// File groups all headers for a given name across volumes.
type File struct {
	Name       string
	IsDir      bool
	Size       int64
	PackedSize int64
	Encrypted  bool
	Stored     bool
	Parts      []Part
}

// Aggregate merges per-volume headers into one entry per name, in first-seen order.
func Aggregate(vs []*Volume) []File {
	m := make(map[string]*File)
	order := []string{}
	for _, v := range vs {
		for _, fb := range v.Blocks {
			if fb.Name == "" {
				continue
			}
			ag, ok := m[fb.Name]
			if !ok {
				ag = &File{Name: fb.Name, IsDir: fb.Dir, Stored: true}
				m[fb.Name] = ag
				order = append(order, fb.Name)
			}
			ag.Parts = append(ag.Parts, Part{Path: v.Path, DataOffset: fb.DataPos, PackedSize: fb.PackedSize})
			ag.PackedSize += fb.PackedSize
			// Only take first reported unpacked size (do not sum across parts)
			if ag.Size == 0 && fb.UnpackedSize > 0 {
				ag.Size = fb.UnpackedSize
			}
			if fb.Encrypted {
				ag.Encrypted = true
			}
			if !fb.Stored {
				ag.Stored = false
			}
		}
	}
	out := make([]File, 0, len(order))
	for _, name := range order {
		out = append(out, *m[name])
	}
	return out
}

// List indexes the given volumes (first volume first) and aggregates their files.
// It fails with ErrHeadersEncrypted when file names cannot be read without a password.
func List(fsys Opener, volPaths []string) ([]File, error) {
	idx, err := IndexVolumes(fsys, volPaths)
	if err != nil {
		return nil, err
	}
	for _, v := range idx {
		if v.HeadersEncrypted {
			return nil, fmt.Errorf("%s: %w", v.Path, ErrHeadersEncrypted)
		}
	}
	return Aggregate(idx), nil
}
