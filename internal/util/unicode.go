package util

import "strings"

// DecodeRar3Unicode rebuilds a RAR3 file name stored with the unicode flag
// (0x0200). The header carries an ASCII form, a zero byte, then an encoded
// form that references the ASCII bytes and a running high byte.
func DecodeRar3Unicode(asciiPart, unicodeData []byte) string {
	if len(unicodeData) == 0 {
		return string(asciiPart)
	}
	highByte := rune(unicodeData[0])
	encPos := 1
	var flags byte
	flagBits := 0
	out := make([]rune, 0, len(asciiPart))
	for encPos < len(unicodeData) {
		if flagBits == 0 {
			flags = unicodeData[encPos]
			encPos++
			flagBits = 8
			if encPos >= len(unicodeData) {
				break
			}
		}
		switch flags >> 6 {
		case 0:
			out = append(out, rune(unicodeData[encPos]))
			encPos++
		case 1:
			out = append(out, rune(unicodeData[encPos])|highByte<<8)
			encPos++
		case 2:
			if encPos+1 >= len(unicodeData) {
				return finish(out, asciiPart)
			}
			out = append(out, rune(unicodeData[encPos])|rune(unicodeData[encPos+1])<<8)
			encPos += 2
		case 3:
			length := int(unicodeData[encPos])
			encPos++
			if length&0x80 != 0 {
				if encPos >= len(unicodeData) {
					return finish(out, asciiPart)
				}
				correction := unicodeData[encPos]
				encPos++
				for n := (length & 0x7f) + 2; n > 0 && len(out) < len(asciiPart); n-- {
					out = append(out, rune(asciiPart[len(out)]+correction)|highByte<<8)
				}
			} else {
				for n := length + 2; n > 0 && len(out) < len(asciiPart); n-- {
					out = append(out, rune(asciiPart[len(out)]))
				}
			}
		}
		flags <<= 2
		flagBits -= 2
	}
	return finish(out, asciiPart)
}

// finish returns the decoded runes, or the ASCII form when decoding yielded nothing.
func finish(out []rune, asciiPart []byte) string {
	if len(out) == 0 {
		return string(asciiPart)
	}
	return string(out)
}

// NormalizeName converts archive separators to forward slashes and drops a
// trailing separator, so names from every host OS compare the same way.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimRight(name, "/")
}
