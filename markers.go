package addonkit

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"
	"strings"
)

// platformDirs are per-platform plugin binary folders; a plugin's root is
// one level above them.
var platformDirs = map[string]bool{
	"32": true, "64": true,
	"win": true, "mac": true, "lin": true,
	"win_x64": true, "mac_x64": true, "lin_x64": true,
}

const earthNavData = "earth nav data"

type marker struct {
	typ     AddonType
	path    string
	depth   int
	root    string
	subtype string // livery family from the oracle
}

type markerSet struct {
	markers      []marker
	pluginRoots  []string
	aircraftDirs []string
}

// classifyEntries makes one pass over a listing and returns its markers
// sorted by depth, type priority and path.
func classifyEntries(entries []Entry, oracle LiveryOracle) markerSet {
	var ms markerSet
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		name := e.Name
		lower := strings.ToLower(name)
		base := path.Base(lower)
		m := marker{path: name, depth: strings.Count(name, "/")}
		switch {
		case strings.HasSuffix(lower, ".xpl"):
			m.typ = Plugin
			m.root = pluginRoot(name)
			ms.pluginRoots = append(ms.pluginRoots, m.root)
		case strings.HasSuffix(lower, ".acf"):
			m.typ = Aircraft
			m.root = parentDir(name)
			ms.aircraftDirs = append(ms.aircraftDirs, m.root)
		case base == "library.txt":
			m.typ = SceneryLibrary
			m.root = parentDir(name)
		case strings.HasSuffix(lower, ".dsf"):
			root, ok := tileRoot(name)
			if !ok {
				continue
			}
			m.typ = SceneryTile
			m.root = root
		case base == "cycle.json", base == "cycle_info.txt":
			m.typ = Navdata
			m.root = parentDir(name)
		case strings.HasSuffix(lower, ".lua"):
			m.typ = Script
			m.root = parentDir(name)
		default:
			if oracle == nil {
				continue
			}
			subtype, root, ok := oracle.Classify(name)
			if !ok {
				continue
			}
			m.typ = Livery
			m.root = cleanInternal(root)
			m.subtype = subtype
		}
		ms.markers = append(ms.markers, m)
	}
	sort.SliceStable(ms.markers, func(i, j int) bool {
		a, b := ms.markers[i], ms.markers[j]
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		if a.typ != b.typ {
			return a.typ < b.typ
		}
		return a.path < b.path
	})
	return ms
}

// pluginRoot is the directory holding a plugin binary, skipping a
// per-platform folder.
func pluginRoot(p string) string {
	dir := parentDir(p)
	if dir != "" && platformDirs[strings.ToLower(path.Base(dir))] {
		return parentDir(dir)
	}
	return dir
}

// tileRoot is the directory that contains "Earth nav data" above a DSF.
func tileRoot(p string) (string, bool) {
	parts := strings.Split(p, "/")
	for i := 0; i < len(parts)-1; i++ {
		if strings.ToLower(parts[i]) == earthNavData {
			return strings.Join(parts[:i], "/"), true
		}
	}
	return "", false
}

func isClaimed(p string, claimed []string) bool {
	for _, c := range claimed {
		if c == "" || strings.HasPrefix(p, c) {
			return true
		}
	}
	return false
}

// insideAny reports whether p lies under one of the non-empty dirs.
func insideAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if d != "" && strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}

type navdataInfo struct {
	cycle    string
	provider string
}

var (
	airacCycleRe = regexp.MustCompile(`(?i)AIRAC\s+cycle\s*:\s*(\d{4})`)
	providerRe   = regexp.MustCompile(`(?im)^\s*(?:data\s+)?provider\s*:\s*(.+?)\s*$`)
)

// parseNavdata reads the cycle descriptor shipped with navdata sets, either
// cycle.json ({"cycle": "2401", "name": "..."}) or a cycle_info.txt text block.
func parseNavdata(base string, data []byte) navdataInfo {
	var info navdataInfo
	if strings.EqualFold(base, "cycle.json") {
		var doc struct {
			Cycle json.RawMessage `json:"cycle"`
			Name  string          `json:"name"`
		}
		if err := json.Unmarshal(data, &doc); err == nil {
			if c := strings.Trim(string(doc.Cycle), `" `); c != "null" {
				info.cycle = c
			}
			info.provider = doc.Name
			return info
		}
	}
	if m := airacCycleRe.FindSubmatch(data); m != nil {
		info.cycle = string(m[1])
	}
	if m := providerRe.FindSubmatch(data); m != nil {
		info.provider = string(m[1])
	}
	return info
}
