package addonkit

import "strings"

// DefaultMaxDepth is the nesting budget of a new ScanContext.
const DefaultMaxDepth = 3

// NestedArchiveInfo describes one active hop into a nested archive.
type NestedArchiveInfo struct {
	InternalPath string
	Password     string
	Format       ArchiveFormat
}

// ScanStats counts what happened during the scans that shared a context.
type ScanStats struct {
	Archives      int // archives opened, top-level included
	Markers       int // marker entries classified
	NestedSkipped int // nested archives skipped for reasons other than a password
}

type passwordKey struct{ parent, nested string }

// ScanContext carries the recursion budget, the active nesting chain and the
// caller-known passwords of nested archives through one top-level scan or
// extraction. It is not safe for concurrent use.
type ScanContext struct {
	remaining int
	chain     []NestedArchiveInfo
	passwords map[passwordKey]string
	stats     ScanStats
}

// NewScanContext returns a context with the DefaultMaxDepth budget.
func NewScanContext() *ScanContext { return NewScanContextWithDepth(DefaultMaxDepth) }

// NewScanContextWithDepth returns a context allowing depth levels of nesting.
func NewScanContextWithDepth(depth int) *ScanContext {
	if depth < 0 {
		depth = 0
	}
	return &ScanContext{remaining: depth, passwords: make(map[passwordKey]string)}
}

// CanRecurse reports whether nested archives may still be opened.
func (c *ScanContext) CanRecurse() bool { return c.remaining > 0 }

// PushArchive enters a nested archive. Every push must be paired with a
// PopArchive, typically via defer.
func (c *ScanContext) PushArchive(info NestedArchiveInfo) {
	c.chain = append(c.chain, info)
	c.remaining--
}

// PopArchive leaves the most recently entered archive and gives its budget
// back so the next sibling starts from the same state.
func (c *ScanContext) PopArchive() {
	if len(c.chain) == 0 {
		return
	}
	c.chain = c.chain[:len(c.chain)-1]
	c.remaining++
}

// Depth is the number of active nested hops.
func (c *ScanContext) Depth() int { return len(c.chain) }

// Remaining is the nesting budget left.
func (c *ScanContext) Remaining() int { return c.remaining }

// ParentChain returns a copy of the active chain, outermost first.
func (c *ScanContext) ParentChain() []NestedArchiveInfo {
	return append([]NestedArchiveInfo(nil), c.chain...)
}

// CurrentPath is the logical path of the archive being processed: root
// followed by the internal path of every active hop.
func (c *ScanContext) CurrentPath(root string) string {
	return joinLogical(root, c.chain)
}

// SetNestedPassword records the password for the archive nested at
// internal path nested inside the archive with logical path parent.
func (c *ScanContext) SetNestedPassword(parent, nested, password string) {
	c.passwords[passwordKey{parent, cleanInternal(nested)}] = password
}

// NestedPassword looks up a password recorded with SetNestedPassword.
func (c *ScanContext) NestedPassword(parent, nested string) (string, bool) {
	pw, ok := c.passwords[passwordKey{parent, cleanInternal(nested)}]
	return pw, ok
}

// Stats returns the counters accumulated so far.
func (c *ScanContext) Stats() ScanStats { return c.stats }

func (c *ScanContext) passwordFingerprint() []string {
	out := make([]string, 0, len(c.passwords))
	for k, v := range c.passwords {
		out = append(out, k.parent+"\x00"+k.nested+"\x00"+v)
	}
	return out
}

func joinLogical(root string, chain []NestedArchiveInfo) string {
	var b strings.Builder
	b.WriteString(root)
	for _, hop := range chain {
		b.WriteByte('/')
		b.WriteString(hop.InternalPath)
	}
	return b.String()
}

// cleanInternal normalizes an archive-internal path to slash form without a trailing slash.
func cleanInternal(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}
