package addonkit

// AddonType classifies a detected package. Declaration order is the
// resolution priority used when markers sit at the same depth.
type AddonType int

const (
	Aircraft AddonType = iota
	SceneryTile
	SceneryLibrary
	Plugin
	Navdata
	Livery
	Script
)

func (t AddonType) String() string {
	switch t {
	case Aircraft:
		return "aircraft"
	case SceneryTile:
		return "scenery-tile"
	case SceneryLibrary:
		return "scenery-library"
	case Plugin:
		return "plugin"
	case Navdata:
		return "navdata"
	case Livery:
		return "livery"
	case Script:
		return "script"
	}
	return "unknown"
}

// ArchiveHop is one step into a nested archive.
type ArchiveHop struct {
	InternalPath string // canonical first volume, relative to the containing archive
	Format       ArchiveFormat
}

// ExtractionChain locates a package that lives inside nested archives.
// Hops are ordered outermost first; FinalRoot is the package root inside the
// innermost archive ("" for its root).
type ExtractionChain struct {
	Hops      []ArchiveHop
	FinalRoot string
}

func (c *ExtractionChain) clone() *ExtractionChain {
	if c == nil {
		return nil
	}
	return &ExtractionChain{Hops: append([]ArchiveHop(nil), c.Hops...), FinalRoot: c.FinalRoot}
}

// DetectedItem is one installable package found by Scan.
type DetectedItem struct {
	Type AddonType
	// ArchivePath is the on-disk top-level archive.
	ArchivePath string
	// InternalRoot is the package root inside ArchivePath, "" for the archive
	// root. Always empty when Chain is set.
	InternalRoot string
	DisplayName  string
	Chain        *ExtractionChain
	// Subtype is the aircraft family of a livery or the provider of a navdata set.
	Subtype string
	// Cycle is the AIRAC cycle of a navdata set, when known.
	Cycle string
}

// Root returns the package root inside the innermost archive.
func (d DetectedItem) Root() string {
	if d.Chain != nil {
		return d.Chain.FinalRoot
	}
	return d.InternalRoot
}

func (d DetectedItem) clone() DetectedItem {
	d.Chain = d.Chain.clone()
	return d
}

// Entry is one row of an archive listing.
type Entry struct {
	Name      string // slash separated, no trailing slash
	IsDir     bool
	Size      int64
	Encrypted bool
}

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Files         int
	Dirs          int
	Bytes         int64
	UnsafeSkipped int
}
