package addonkit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ScanCache memoizes scan results for unmodified archives. It is an explicit
// handle passed to the engine, bounded by capacity and entry lifetime, and
// safe for concurrent use.
type ScanCache struct {
	lru *expirable.LRU[string, []DetectedItem]
}

// NewScanCache holds up to size results, each for at most ttl (0 = no expiry).
func NewScanCache(size int, ttl time.Duration) *ScanCache {
	return &ScanCache{lru: expirable.NewLRU[string, []DetectedItem](size, nil, ttl)}
}

func (c *ScanCache) get(key string) ([]DetectedItem, bool) {
	items, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneItems(items), true
}

func (c *ScanCache) put(key string, items []DetectedItem) {
	c.lru.Add(key, cloneItems(items))
}

// Len is the number of cached results.
func (c *ScanCache) Len() int { return c.lru.Len() }

// Purge drops every cached result.
func (c *ScanCache) Purge() { c.lru.Purge() }

// scanCacheKey identifies a scan by archive identity (first volume path plus
// the size and mtime of every volume), nesting budget and a digest of every
// password involved.
func scanCacheKey(fsys FileSystem, archivePath, password string, sc *ScanContext) (string, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return "", err
	}
	vols, err := DiscoverVolumesFS(fsys, abs)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(vols[0])
	for _, v := range vols {
		fi, err := fsys.Stat(v)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "|%d:%d", fi.Size(), fi.ModTime().UnixNano())
	}
	secrets := sc.passwordFingerprint()
	sort.Strings(secrets)
	h := sha256.New()
	h.Write([]byte(password))
	for _, s := range secrets {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return fmt.Sprintf("%s|%s|%s", b.String(), strconv.Itoa(sc.Remaining()), hex.EncodeToString(h.Sum(nil))), nil
}

func cloneItems(items []DetectedItem) []DetectedItem {
	if items == nil {
		return nil
	}
	out := make([]DetectedItem, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}
