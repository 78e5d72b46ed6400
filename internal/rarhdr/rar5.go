package rarhdr

import (
	"errors"
	"fmt"
	"io"

	"github.com/javi11/addonkit/internal/parse"
	"github.com/javi11/addonkit/internal/util"
)

const (
	rar5BlockFile       = 2
	rar5BlockService    = 3
	rar5BlockEncryption = 4
	rar5BlockEnd        = 5

	rar5HeadExtra       = 0x0001
	rar5HeadData        = 0x0002
	rar5HeadSplitBefore = 0x0008
	rar5HeadSplitAfter  = 0x0010

	rar5FileDir   = 0x0001
	rar5FileMtime = 0x0002
	rar5FileCRC   = 0x0004

	rar5ExtraCrypt = 0x01

	maxRar5HeadSize = 2 * 1024 * 1024
)

// parseRar5 walks the headers of a RAR5 volume and collects all file headers.
func parseRar5(w *walker, vi *Volume) error {
	if err := w.skip(int64(len(sigV5))); err != nil {
		return fmt.Errorf("discard signature: %w", err)
	}
	for {
		if w.atEnd() {
			return nil
		}
		hdrStart := w.pos
		var crc [4]byte
		if err := w.read(crc[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read block crc at %d: %w", hdrStart, err)
		}
		headSize, headSizeLen, err := parse.ReadVarint(w.br)
		if err != nil {
			return fmt.Errorf("read headSize at %d: %w", w.pos, err)
		}
		w.pos += headSizeLen
		if headSize == 0 { // padding
			return nil
		}
		if headSize > maxRar5HeadSize {
			return fmt.Errorf("suspicious headSize %d at %d", headSize, hdrStart)
		}
		if w.size > 0 && w.pos+int64(headSize) > w.size { // truncated volume
			return nil
		}
		headData := make([]byte, headSize)
		if err := w.read(headData); err != nil {
			return fmt.Errorf("read headData size=%d at %d: %w", headSize, hdrStart, err)
		}
		c := parse.NewCursor(headData)
		blockType, err := c.Varint()
		if err != nil {
			return fmt.Errorf("blockType: %w", err)
		}
		flags, err := c.Varint()
		if err != nil {
			return fmt.Errorf("flags: %w", err)
		}
		var extraAreaSize, dataSize uint64
		if flags&rar5HeadExtra != 0 {
			if extraAreaSize, err = c.Varint(); err != nil {
				return fmt.Errorf("extraAreaSize: %w", err)
			}
		}
		if flags&rar5HeadData != 0 {
			if dataSize, err = c.Varint(); err != nil {
				return fmt.Errorf("dataSize: %w", err)
			}
		}
		if extraAreaSize > headSize-uint64(c.Offset()) {
			return fmt.Errorf("extra area overflow at %d", hdrStart)
		}
		bodyEnd := int(headSize - extraAreaSize)
		switch blockType {
		case rar5BlockEncryption:
			vi.HeadersEncrypted = true
			return nil
		case rar5BlockFile, rar5BlockService:
			fb, err := parseRar5FileHeader(headData[c.Offset():bodyEnd], headData[bodyEnd:])
			if err != nil {
				return fmt.Errorf("file header at %d: %w", hdrStart, err)
			}
			fb.HeaderPos = hdrStart
			fb.HeaderSize = 4 + headSizeLen + int64(headSize)
			fb.DataPos = hdrStart + fb.HeaderSize
			fb.PackedSize = int64(dataSize)
			fb.SplitBefore = flags&rar5HeadSplitBefore != 0
			fb.SplitAfter = flags&rar5HeadSplitAfter != 0
			if blockType == rar5BlockFile {
				vi.Blocks = append(vi.Blocks, fb)
			}
		case rar5BlockEnd:
			return nil
		}
		if err := w.skip(int64(dataSize)); err != nil {
			return fmt.Errorf("skip data at %d: %w", hdrStart, err)
		}
	}
}

// parseRar5FileHeader decodes the type-specific part of a file or service header.
func parseRar5FileHeader(body, extra []byte) (Block, error) {
	c := parse.NewCursor(body)
	fileFlags, err := c.Varint()
	if err != nil {
		return Block{}, fmt.Errorf("fileFlags: %w", err)
	}
	unpSize, err := c.Varint()
	if err != nil {
		return Block{}, fmt.Errorf("unpSize: %w", err)
	}
	if _, err := c.Varint(); err != nil {
		return Block{}, fmt.Errorf("attributes: %w", err)
	}
	if fileFlags&rar5FileMtime != 0 {
		if err := c.Skip(4); err != nil {
			return Block{}, errors.New("mtime truncated")
		}
	}
	if fileFlags&rar5FileCRC != 0 {
		if err := c.Skip(4); err != nil {
			return Block{}, errors.New("crc32 truncated")
		}
	}
	compInfo, err := c.Varint()
	if err != nil {
		return Block{}, fmt.Errorf("compInfo: %w", err)
	}
	if _, err := c.Varint(); err != nil {
		return Block{}, fmt.Errorf("hostOS: %w", err)
	}
	nameLen, err := c.Varint()
	if err != nil {
		return Block{}, fmt.Errorf("nameLen: %w", err)
	}
	if nameLen == 0 || nameLen > uint64(c.Remaining()) {
		return Block{}, fmt.Errorf("bad nameLen %d", nameLen)
	}
	name, err := c.Bytes(int(nameLen))
	if err != nil {
		return Block{}, err
	}
	return Block{
		Name:         util.NormalizeName(string(name)),
		UnpackedSize: int64(unpSize),
		Dir:          fileFlags&rar5FileDir != 0,
		Stored:       (compInfo>>7)&0x07 == 0,
		Encrypted:    hasExtraRecord(extra, rar5ExtraCrypt),
	}, nil
}

// hasExtraRecord reports whether the extra area carries a record of the given type.
func hasExtraRecord(extra []byte, recordType uint64) bool {
	c := parse.NewCursor(extra)
	for c.Remaining() > 0 {
		size, err := c.Varint()
		if err != nil || size == 0 {
			return false
		}
		rec, err := c.Bytes(int(size))
		if err != nil {
			return false
		}
		t, _, err := parse.ReadVarintFromSlice(rec)
		if err != nil {
			return false
		}
		if t == recordType {
			return true
		}
	}
	return false
}
