// Package rarhdr indexes RAR volumes by walking their block headers only.
//
// It never decompresses data: it reports, per volume, the file headers it
// finds (name, sizes, directory and encryption flags) and whether the headers
// themselves are encrypted. That is enough to list an archive and to decide
// up front whether a password is needed before handing the volumes to a
// decoder.
package rarhdr

import (
	"errors"
	"io/fs"
	"os"
)

// Version enumerations
const (
	VersionUnknown = "UNKNOWN"
	VersionRar3    = "RAR3"
	VersionRar5    = "RAR5"
)

var (
	sigV3 = []byte("Rar!\x1A\x07\x00")     // RAR 1.5 - 4.x marker block
	sigV5 = []byte("Rar!\x1A\x07\x01\x00") // RAR5 signature
)

// Sentinel errors.
var (
	ErrHeadersEncrypted = errors.New("archive headers are encrypted")
	ErrNoSignature      = errors.New("RAR signature not found in first 1KB")
)

// Volume holds the header index of one volume file.
type Volume struct {
	Path             string
	Version          string
	HeadersEncrypted bool
	Blocks           []Block
}

// DataOffset is the position of the first file payload, or 0 when the volume has no file blocks.
func (v *Volume) DataOffset() int64 {
	if len(v.Blocks) == 0 {
		return 0
	}
	return v.Blocks[0].DataPos
}

// Block is one file header (RAR3 type 0x74, RAR5 type 2).
type Block struct {
	Name         string
	HeaderPos    int64 // offset where header starts
	HeaderSize   int64 // full header size
	DataPos      int64 // where the file's data starts within this volume
	PackedSize   int64 // data bytes stored in this volume
	UnpackedSize int64
	Dir          bool
	Stored       bool
	Encrypted    bool
	SplitBefore  bool // continued from previous volume
	SplitAfter   bool // continues in next volume
}

// Opener abstracts the one filesystem operation the indexer needs.
type Opener interface {
	Open(path string) (fs.File, error)
}

type osOpener struct{}

func (osOpener) Open(p string) (fs.File, error) { return os.Open(p) }

// DefaultFS opens paths on the local filesystem.
var DefaultFS Opener = osOpener{}
