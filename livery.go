package addonkit

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// LiveryOracle recognizes livery files. For a matching archive path it
// returns the aircraft family the livery belongs to and the livery root.
type LiveryOracle interface {
	Classify(path string) (subtype, root string, ok bool)
}

// LiveryRule matches a glob against the lower-cased base name of an entry.
// RootLevels is how many directories to climb from the matched file to
// reach the livery root; zero means the containing directory.
type LiveryRule struct {
	Subtype    string
	Pattern    string
	RootLevels int
}

type compiledRule struct {
	LiveryRule
	g glob.Glob
}

// GlobOracle is a LiveryOracle over an ordered rule list; the first match wins.
type GlobOracle struct {
	rules []compiledRule
}

// NewGlobOracle compiles rules.
func NewGlobOracle(rules ...LiveryRule) (*GlobOracle, error) {
	o := &GlobOracle{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		g, err := glob.Compile(strings.ToLower(r.Pattern))
		if err != nil {
			return nil, fmt.Errorf("livery rule %q: %w", r.Pattern, err)
		}
		o.rules = append(o.rules, compiledRule{LiveryRule: r, g: g})
	}
	return o, nil
}

func (o *GlobOracle) Classify(p string) (string, string, bool) {
	p = cleanInternal(p)
	base := strings.ToLower(path.Base(p))
	for _, r := range o.rules {
		if !r.g.Match(base) {
			continue
		}
		levels := r.RootLevels
		if levels <= 0 {
			levels = 1
		}
		root := p
		for i := 0; i < levels; i++ {
			root = parentDir(root)
		}
		return r.Subtype, root, true
	}
	return "", "", false
}

// Icons X-Plane shows in the livery picker, one per supported airframe.
var defaultLiveryRules = []LiveryRule{
	{Subtype: "A319", Pattern: "a319_*icon11*.png"},
	{Subtype: "A320", Pattern: "a320_*icon11*.png"},
	{Subtype: "A321", Pattern: "a321_*icon11*.png"},
	{Subtype: "B738", Pattern: "b738_*icon11*.png"},
}

// DefaultLiveryOracle returns the oracle used when none is configured.
func DefaultLiveryOracle() LiveryOracle {
	o, err := NewGlobOracle(defaultLiveryRules...)
	if err != nil {
		panic(err)
	}
	return o
}

// parentDir returns the slash-separated parent of p, "" at the top.
func parentDir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}
