package addonkit

import (
	"path"
	"strings"
)

type itemKey struct {
	typ  AddonType
	root string
}

// detect walks the sorted markers of one archive and resolves packages.
// It returns the packages and the prefixes they claimed.
func (s *scanner) detect(pa *PreparedArchive, entries []Entry, password, stem string) ([]DetectedItem, []string) {
	ms := classifyEntries(entries, s.e.oracle)
	s.sc.stats.Markers += len(ms.markers)
	var (
		items   []DetectedItem
		claimed []string
		seen    = make(map[itemKey]bool)
	)
	for _, m := range ms.markers {
		if isClaimed(m.path, claimed) {
			continue
		}
		if (m.typ == Aircraft || m.typ == SceneryTile) && insideAny(m.path, ms.pluginRoots) {
			continue
		}
		if m.typ == Plugin && insideAny(m.path, ms.aircraftDirs) {
			continue
		}
		item := s.detectMarker(pa, m, password, stem)
		// several rules may resolve to one root; keep the first
		key := itemKey{item.Type, item.InternalRoot}
		if seen[key] {
			continue
		}
		seen[key] = true
		if item.InternalRoot != "" {
			items, claimed = s.evictUnder(items, claimed, item.InternalRoot+"/")
		}
		switch {
		case item.InternalRoot != "":
			claimed = append(claimed, item.InternalRoot+"/")
		case item.Type == Aircraft:
			// an aircraft at the archive root owns everything
			claimed = append(claimed, "")
		}
		s.e.log.Debug("detected", "type", item.Type, "root", item.InternalRoot, "marker", m.path)
		items = append(items, item)
	}
	return items, claimed
}

// evictUnder drops packages and claims lying below prefix. A deep marker
// such as a tile DSF can resolve to a root that encloses packages found
// earlier from shallower markers; the enclosing package owns them.
func (s *scanner) evictUnder(items []DetectedItem, claimed []string, prefix string) ([]DetectedItem, []string) {
	kept := items[:0]
	for _, it := range items {
		if strings.HasPrefix(it.InternalRoot, prefix) {
			s.e.log.Debug("absorbed by enclosing package", "type", it.Type, "root", it.InternalRoot, "into", strings.TrimSuffix(prefix, "/"))
			continue
		}
		kept = append(kept, it)
	}
	keptClaims := claimed[:0]
	for _, c := range claimed {
		if c != "" && strings.HasPrefix(c, prefix) {
			continue
		}
		keptClaims = append(keptClaims, c)
	}
	return kept, keptClaims
}

func (s *scanner) detectMarker(pa *PreparedArchive, m marker, password, stem string) DetectedItem {
	item := DetectedItem{
		Type:         m.typ,
		InternalRoot: m.root,
		DisplayName:  displayName(m.root, stem),
		Subtype:      m.subtype,
	}
	if m.typ == Navdata {
		data, err := readEntry(pa, m.path, password)
		if err != nil {
			s.e.log.Debug("navdata descriptor unreadable", "archive", pa.Source, "entry", m.path, "err", err)
			return item
		}
		info := parseNavdata(path.Base(m.path), data)
		item.Cycle = info.cycle
		item.Subtype = info.provider
	}
	return item
}

func displayName(root, stem string) string {
	if root == "" {
		return stem
	}
	return path.Base(root)
}
