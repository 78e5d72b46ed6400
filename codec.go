package addonkit

import (
	"fmt"
	"strings"
)

// maxEntryRead caps how much of one entry a marker detector may read.
const maxEntryRead = 1 << 20

// Per-format operations are dispatched with a switch over the closed
// ArchiveFormat set rather than through an interface.

func listEntries(pa *PreparedArchive, password string) ([]Entry, error) {
	switch pa.Format {
	case FormatZip:
		return listZip(pa)
	case FormatSevenZip:
		return listSevenZip(pa, password)
	case FormatRar:
		return listRar(pa, password)
	}
	return nil, fmt.Errorf("%s: %w", pa.Source, ErrUnsupportedFormat)
}

// readEntry returns up to maxEntryRead bytes of the named entry.
func readEntry(pa *PreparedArchive, name, password string) ([]byte, error) {
	switch pa.Format {
	case FormatZip:
		return readZipEntry(pa, name, password)
	case FormatSevenZip:
		return readSevenZipEntry(pa, name, password)
	case FormatRar:
		return readRarEntry(pa, name, password)
	}
	return nil, fmt.Errorf("%s: %w", pa.Source, ErrUnsupportedFormat)
}

// verifyPassword checks that the archive's content can be decrypted: either
// nothing is encrypted, or password decrypts the smallest encrypted entry.
func verifyPassword(pa *PreparedArchive, entries []Entry, password string) error {
	switch pa.Format {
	case FormatZip:
		return verifyZip(pa, entries, password)
	case FormatSevenZip:
		return verifySevenZip(pa, password)
	case FormatRar:
		return verifyRar(pa, entries, password)
	}
	return fmt.Errorf("%s: %w", pa.Source, ErrUnsupportedFormat)
}

// smallestEncrypted returns the cheapest entry to test a password against.
func smallestEncrypted(entries []Entry) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range entries {
		if e.IsDir || !e.Encrypted {
			continue
		}
		if !found || e.Size < best.Size || (e.Size == best.Size && e.Name < best.Name) {
			best, found = e, true
		}
	}
	return best, found
}

// isPasswordMessage recognizes codec errors that carry no typed encryption hint.
func isPasswordMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
