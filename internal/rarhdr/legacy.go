package rarhdr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/javi11/addonkit/internal/util"
)

var errNoLegacyHeader = errors.New("legacy scan: no file header found")

// scanLegacy looks for the first plausible file header after the marker
// block (caller positions the reader at baseOffset+7).
func scanLegacy(br *bufio.Reader, vi *Volume, baseOffset int64) error {
	// Legacy headers appear near the start; 64 KiB is typically sufficient.
	const scanLimit = 64 * 1024
	peekBuf, _ := br.Peek(scanLimit)
	searchStart := 0
	for searchStart < len(peekBuf) {
		pos := bytes.IndexByte(peekBuf[searchStart:], rar3BlockFile)
		if pos < 0 {
			break
		}
		typePos := searchStart + pos
		searchStart = typePos + 1
		hdrStart := typePos - 2
		if hdrStart < 0 || hdrStart+7 > len(peekBuf) {
			continue
		}
		flags := binary.LittleEndian.Uint16(peekBuf[hdrStart+3 : hdrStart+5])
		size := binary.LittleEndian.Uint16(peekBuf[hdrStart+5 : hdrStart+7])
		if size < 32 {
			continue
		}
		headEnd := hdrStart + int(size)
		if headEnd > len(peekBuf) {
			break
		}
		fixedStart := hdrStart + 7
		fixed := peekBuf[fixedStart : fixedStart+25]
		packSize := int64(binary.LittleEndian.Uint32(fixed[0:4]))
		unpSize := int64(binary.LittleEndian.Uint32(fixed[4:8]))
		method := fixed[18]
		nameSize := int(binary.LittleEndian.Uint16(fixed[19:21]))
		offset := fixedStart + 25
		if flags&rar3FileLarge != 0 {
			if offset+8 > headEnd {
				continue
			}
			packSize |= int64(binary.LittleEndian.Uint32(peekBuf[offset:offset+4])) << 32
			unpSize |= int64(binary.LittleEndian.Uint32(peekBuf[offset+4:offset+8])) << 32
			offset += 8
		}
		if nameSize == 0 || offset+nameSize > headEnd {
			continue
		}
		headerPos := baseOffset + int64(len(sigV3)) + int64(hdrStart)
		vi.Blocks = append(vi.Blocks, Block{
			Name:         util.NormalizeName(rar3Name(peekBuf[offset:offset+nameSize], flags)),
			HeaderPos:    headerPos,
			HeaderSize:   int64(size),
			DataPos:      headerPos + int64(size),
			PackedSize:   packSize,
			UnpackedSize: unpSize,
			Dir:          flags&rar3FileDirMask == rar3FileDirMask,
			Stored:       method == rar3MethodStore,
			Encrypted:    flags&rar3FilePassword != 0,
		})
		return nil
	}
	return errNoLegacyHeader
}

// parseRarLegacy reopens the volume and scans leniently for RAR 1.5/2.x headers.
func parseRarLegacy(fsys Opener, path string, vi *Volume, baseOffset int64) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	start := baseOffset + int64(len(sigV3))
	if rs, ok := f.(io.Seeker); ok {
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return err
		}
	} else if _, err := io.CopyN(io.Discard, f, start); err != nil {
		return err
	}
	return scanLegacy(bufio.NewReader(f), vi, baseOffset)
}
