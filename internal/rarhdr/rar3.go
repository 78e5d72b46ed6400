package rarhdr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/javi11/addonkit/internal/util"
)

const (
	rar3BlockMain = 0x73
	rar3BlockFile = 0x74
	rar3BlockSub  = 0x7a
	rar3BlockEnd  = 0x7b

	rar3MainPassword = 0x0080

	rar3FileSplitBefore = 0x0001
	rar3FileSplitAfter  = 0x0002
	rar3FilePassword    = 0x0004
	rar3FileDirMask     = 0x00e0
	rar3FileLarge       = 0x0100
	rar3FileUnicode     = 0x0200
	rar3FileSalt        = 0x0400
	rar3LongBlock       = 0x8000

	rar3MethodStore = 0x30
)

type rar3BlockHeader struct {
	CRC   uint16
	Type  byte
	Flags uint16
	Size  uint16
}

// parseRar3 walks every block of a RAR 1.5-4.x volume collecting file headers.
func parseRar3(w *walker, vi *Volume) error {
	if err := w.skip(int64(len(sigV3))); err != nil {
		return fmt.Errorf("discard signature: %w", err)
	}
	for {
		if w.atEnd() {
			return nil
		}
		hdrStart := w.pos
		var raw [7]byte
		if err := w.read(raw[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read block header at %d: %w", hdrStart, err)
		}
		h := rar3BlockHeader{
			CRC:   binary.LittleEndian.Uint16(raw[0:2]),
			Type:  raw[2],
			Flags: binary.LittleEndian.Uint16(raw[3:5]),
			Size:  binary.LittleEndian.Uint16(raw[5:7]),
		}
		if h.Size < 7 {
			return fmt.Errorf("bad block size %d at %d", h.Size, hdrStart)
		}
		consumed := int64(7)
		var dataSize int64
		switch h.Type {
		case rar3BlockMain:
			w.mainSeen = true
			if h.Flags&rar3MainPassword != 0 {
				vi.HeadersEncrypted = true
				return nil
			}
		case rar3BlockFile, rar3BlockSub:
			fb, n, err := parseRar3FileHeader(w, hdrStart, h)
			if err != nil {
				return err
			}
			consumed += n
			dataSize = fb.PackedSize
			if h.Type == rar3BlockFile {
				vi.Blocks = append(vi.Blocks, fb)
			}
		case rar3BlockEnd:
			return nil
		default:
			if h.Flags&rar3LongBlock != 0 {
				var add [4]byte
				if err := w.read(add[:]); err != nil {
					return fmt.Errorf("read add size at %d: %w", hdrStart, err)
				}
				consumed += 4
				dataSize = int64(binary.LittleEndian.Uint32(add[:]))
			}
		}
		rest := int64(h.Size) - consumed
		if rest < 0 {
			return fmt.Errorf("block at %d overruns declared size %d", hdrStart, h.Size)
		}
		if err := w.skip(rest); err != nil {
			return fmt.Errorf("skip header remainder at %d: %w", hdrStart, err)
		}
		if err := w.skip(dataSize); err != nil {
			return fmt.Errorf("skip data at %d: %w", hdrStart, err)
		}
	}
}

// parseRar3FileHeader reads the fields following the 7-byte block header.
// The pack size doubles as the block's data size.
func parseRar3FileHeader(w *walker, hdrStart int64, h rar3BlockHeader) (Block, int64, error) {
	var fixed [25]byte
	if err := w.read(fixed[:]); err != nil {
		return Block{}, 0, fmt.Errorf("read file header at %d: %w", hdrStart, err)
	}
	consumed := int64(len(fixed))
	packSize := uint64(binary.LittleEndian.Uint32(fixed[0:4]))
	unpSize := uint64(binary.LittleEndian.Uint32(fixed[4:8]))
	method := fixed[18]
	nameSize := binary.LittleEndian.Uint16(fixed[19:21])
	if h.Flags&rar3FileLarge != 0 {
		var hi [8]byte
		if err := w.read(hi[:]); err != nil {
			return Block{}, 0, fmt.Errorf("read high sizes at %d: %w", hdrStart, err)
		}
		consumed += 8
		packSize |= uint64(binary.LittleEndian.Uint32(hi[0:4])) << 32
		unpSize |= uint64(binary.LittleEndian.Uint32(hi[4:8])) << 32
	}
	nameField := make([]byte, nameSize)
	if err := w.read(nameField); err != nil {
		return Block{}, 0, fmt.Errorf("read name at %d: %w", hdrStart, err)
	}
	consumed += int64(nameSize)
	if h.Flags&rar3FileSalt != 0 {
		if err := w.skip(8); err != nil {
			return Block{}, 0, fmt.Errorf("skip salt at %d: %w", hdrStart, err)
		}
		consumed += 8
	}
	headerSize := int64(h.Size)
	return Block{
		Name:         util.NormalizeName(rar3Name(nameField, h.Flags)),
		HeaderPos:    hdrStart,
		HeaderSize:   headerSize,
		DataPos:      hdrStart + headerSize,
		PackedSize:   int64(packSize),
		UnpackedSize: int64(unpSize),
		Dir:          h.Flags&rar3FileDirMask == rar3FileDirMask,
		Stored:       method == rar3MethodStore,
		Encrypted:    h.Flags&rar3FilePassword != 0,
		SplitBefore:  h.Flags&rar3FileSplitBefore != 0,
		SplitAfter:   h.Flags&rar3FileSplitAfter != 0,
	}, consumed, nil
}

func rar3Name(field []byte, flags uint16) string {
	if flags&rar3FileUnicode != 0 {
		if zero := indexByte(field, 0); zero >= 0 {
			return util.DecodeRar3Unicode(field[:zero], field[zero+1:])
		}
	}
	return safeToString(field)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// safeToString trims at the first NUL.
func safeToString(b []byte) string {
	if i := indexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
