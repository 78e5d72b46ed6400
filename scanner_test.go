package addonkit

import (
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scan(t *testing.T, e *Engine, path string, sc *ScanContext, pw string) []DetectedItem {
	t.Helper()
	items, err := e.Scan(context.Background(), path, sc, pw)
	require.NoError(t, err)
	return items
}

func summary(items []DetectedItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Type.String()+":"+it.Root()+":"+it.DisplayName)
	}
	return out
}

func TestScanAircraftSuppressesEmbeddedPlugin(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "MyPlane.zip"),
		dir("MyPlane/"),
		file("MyPlane/MyPlane.acf", "I\n1100 Version\nACF\n"),
		file("MyPlane/plugins/foo/64/foo.xpl", "bin"),
		file("MyPlane/plugins/foo/64/data.txt", "x"),
		file("MyPlane/objects/body.obj", "I\n800\nOBJ\n"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, Aircraft, it.Type)
	assert.Equal(t, "MyPlane", it.InternalRoot)
	assert.Equal(t, "MyPlane", it.DisplayName)
	assert.Equal(t, p, it.ArchivePath)
	assert.Nil(t, it.Chain)
}

func TestScanPluginWithPlatformFolders(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "XPUIPC 2.0.zip"),
		file("XPUIPC/64/win.xpl", "w"),
		file("XPUIPC/64/lin.xpl", "l"),
		file("XPUIPC/mac.xpl", "m"),
		file("XPUIPC/readme.txt", "r"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	assert.Equal(t, []string{"plugin:XPUIPC:XPUIPC"}, summary(items))
}

func TestScanAircraftAtArchiveRootClaimsEverything(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "Cessna.zip"),
		file("c172.acf", "acf"),
		file("plugins/helper/64/helper.xpl", "bin"),
		file("scripts/a.lua", "print(1)"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	assert.Equal(t, []string{"aircraft::Cessna"}, summary(items))
}

func TestScanSceneryAndLibraries(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "Bundle.zip"),
		file("KSEA Demo/Earth nav data/+40-130/+47-123.dsf", "dsf"),
		file("KSEA Demo/objects/tower.obj", "obj"),
		file("OpenSceneryX/library.txt", "A\n800\nLIBRARY\n"),
		file("OpenSceneryX/objects/a/library.txt", "nested library marker"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	assert.Equal(t, []string{
		"scenery-library:OpenSceneryX:OpenSceneryX",
		"scenery-tile:KSEA Demo:KSEA Demo",
	}, summary(items))
}

func TestScanNavdataReadsCycle(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "navdata.zip"),
		file("Custom Data/cycle.json", `{"cycle":"2401","name":"Navigraph"}`),
		file("Custom Data/earth_fix.dat", "I\n1101\n"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	require.Len(t, items, 1)
	assert.Equal(t, Navdata, items[0].Type)
	assert.Equal(t, "Custom Data", items[0].InternalRoot)
	assert.Equal(t, "2401", items[0].Cycle)
	assert.Equal(t, "Navigraph", items[0].Subtype)
}

func TestScanLiveries(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "liveries.zip"),
		file("Delta/a320_delta_icon11.png", "png"),
		file("Delta/a320_delta_icon11_thumb.png", "png"),
		file("Delta/objects/fuselage.png", "png"),
		file("United/b738_united_icon11.png", "png"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	require.Len(t, items, 2)
	assert.Equal(t, []string{"livery:Delta:Delta", "livery:United:United"}, summary(items))
	assert.Equal(t, "A320", items[0].Subtype)
	assert.Equal(t, "B738", items[1].Subtype)
}

func TestScanLiveryDedupAtRoot(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "Delta Livery.zip"),
		file("a320_delta_icon11.png", "png"),
		file("a320_delta_icon11_thumb.png", "png"),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	assert.Equal(t, []string{"livery::Delta Livery"}, summary(items))
}

func TestScanEmptyArchive(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "empty.zip"))
	items, err := quietEngine(t).Scan(context.Background(), p, nil, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScanUnsupportedFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	writeBytes(t, p, []byte("hello"))
	_, err := quietEngine(t).Scan(context.Background(), p, nil, "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestScanCorruptTopLevel(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.zip")
	writeBytes(t, p, []byte("this is not a zip archive at all"))
	_, err := quietEngine(t).Scan(context.Background(), p, nil, "")
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestScanMisnamedArchiveUsesContent(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "pack.7z"), file("Lib/library.txt", "A"))
	items := scan(t, quietEngine(t), p, nil, "")
	assert.Equal(t, []string{"scenery-library:Lib:Lib"}, summary(items))
}

func TestScanEncryptedTopLevel(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "locked.zip"),
		locked("Lib/library.txt", "A\n800\nLIBRARY\n", "pw1"),
		file("Lib/readme.txt", "hi"),
	)
	e := quietEngine(t)

	_, err := e.Scan(context.Background(), p, nil, "")
	var pre *PasswordRequiredError
	require.ErrorAs(t, err, &pre)
	assert.False(t, pre.BadPassword)
	assert.Equal(t, "Lib/library.txt", pre.Entry)
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = e.Scan(context.Background(), p, nil, "wrong")
	require.ErrorAs(t, err, &pre)
	assert.True(t, pre.BadPassword)

	items := scan(t, e, p, nil, "pw1")
	assert.Equal(t, []string{"scenery-library:Lib:Lib"}, summary(items))
}

func TestScanSplitArchiveFromAnyVolume(t *testing.T) {
	d := t.TempDir()
	data := buildZip(t, file("Plane/Plane.acf", strings.Repeat("a", 4096)), file("Plane/liveries/x.png", "png"))
	vols := splitInto(t, filepath.Join(d, "Plane.zip"), data, 3)
	e := quietEngine(t)
	for _, v := range vols {
		items := scan(t, e, v, nil, "")
		require.Len(t, items, 1, v)
		assert.Equal(t, vols[0], items[0].ArchivePath)
		assert.Equal(t, "Plane", items[0].InternalRoot)
	}
}

// nestedFixture builds outer.zip holding a library and extra.zip, whose
// only content is encrypted with "inner-pw".
func nestedFixture(t *testing.T) string {
	inner := buildZip(t, locked("lib2/library.txt", "A\n800\nLIBRARY\n", "inner-pw"))
	return writeZip(t, filepath.Join(t.TempDir(), "outer.zip"),
		file("lib/library.txt", "A\n800\nLIBRARY\n"),
		file("extra.zip", string(inner)),
	)
}

func TestScanNestedPasswordDoesNotAbortSiblings(t *testing.T) {
	p := nestedFixture(t)
	e := quietEngine(t)
	sc := NewScanContext()

	items, err := e.Scan(context.Background(), p, sc, "")
	require.Error(t, err)
	assert.Equal(t, []string{"scenery-library:lib:lib"}, summary(items))

	var npe *NestedPasswordRequiredError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, p, npe.Parent)
	assert.Equal(t, "extra.zip", npe.Nested)
	assert.False(t, npe.BadPassword)
	assert.ErrorIs(t, err, ErrPasswordRequired)
	assert.Equal(t, 0, sc.Depth())
	assert.Equal(t, DefaultMaxDepth, sc.Remaining())

	sc.SetNestedPassword(npe.Parent, npe.Nested, "inner-pw")
	items, err = e.Scan(context.Background(), p, sc, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "lib", items[0].InternalRoot)
	nested := items[1]
	assert.Equal(t, SceneryLibrary, nested.Type)
	assert.Equal(t, p, nested.ArchivePath)
	assert.Equal(t, "", nested.InternalRoot)
	require.NotNil(t, nested.Chain)
	assert.Equal(t, []ArchiveHop{{InternalPath: "extra.zip", Format: FormatZip}}, nested.Chain.Hops)
	assert.Equal(t, "lib2", nested.Chain.FinalRoot)
	assert.Equal(t, "lib2", nested.DisplayName)
}

func TestScanNestedWrongPassword(t *testing.T) {
	p := nestedFixture(t)
	sc := NewScanContext()
	sc.SetNestedPassword(p, "extra.zip", "nope")
	_, err := quietEngine(t).Scan(context.Background(), p, sc, "")
	var npe *NestedPasswordRequiredError
	require.ErrorAs(t, err, &npe)
	assert.True(t, npe.BadPassword)
}

// deepFixture: outer.zip > mid.zip > deep/inner.zip > Scripts/hello.lua
func deepFixture(t *testing.T) string {
	inner := buildZip(t, file("Scripts/hello.lua", "print('hello')"))
	mid := buildZip(t, file("deep/inner.zip", string(inner)), file("notes.txt", "n"))
	return writeZip(t, filepath.Join(t.TempDir(), "outer.zip"), file("mid.zip", string(mid)))
}

func TestScanTwoLevelChain(t *testing.T) {
	p := deepFixture(t)
	sc := NewScanContext()
	items := scan(t, quietEngine(t), p, sc, "")
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, Script, it.Type)
	require.NotNil(t, it.Chain)
	assert.Equal(t, []ArchiveHop{
		{InternalPath: "mid.zip", Format: FormatZip},
		{InternalPath: "deep/inner.zip", Format: FormatZip},
	}, it.Chain.Hops)
	assert.Equal(t, "Scripts", it.Chain.FinalRoot)
	assert.Equal(t, 3, sc.Stats().Archives)
	assert.Equal(t, 0, sc.Depth())
}

func TestScanDepthBudget(t *testing.T) {
	p := deepFixture(t)
	e := quietEngine(t)

	sc := NewScanContextWithDepth(1)
	items := scan(t, e, p, sc, "")
	assert.Empty(t, items)
	assert.Equal(t, 2, sc.Stats().Archives)
	assert.Equal(t, 1, sc.Remaining())

	items = scan(t, e, p, NewScanContextWithDepth(0), "")
	assert.Empty(t, items)
}

func TestScanNestedRootlessItemTakesArchiveStem(t *testing.T) {
	inner := buildZip(t, file("init.lua", "print(1)"))
	p := writeZip(t, filepath.Join(t.TempDir(), "bundle.zip"), file("Scripts Pack.zip", string(inner)))
	items := scan(t, quietEngine(t), p, nil, "")
	require.Len(t, items, 1)
	assert.Equal(t, "Scripts Pack", items[0].DisplayName)
	assert.Equal(t, "", items[0].Chain.FinalRoot)
}

func TestScanSkipsNestedUnderClaimedRoot(t *testing.T) {
	inner := buildZip(t, file("Other/library.txt", "A"))
	p := writeZip(t, filepath.Join(t.TempDir(), "plane.zip"),
		file("Plane/Plane.acf", "acf"),
		file("Plane/extras/bonus.zip", string(inner)),
	)
	sc := NewScanContext()
	items := scan(t, quietEngine(t), p, sc, "")
	assert.Equal(t, []string{"aircraft:Plane:Plane"}, summary(items))
	assert.Equal(t, 1, sc.Stats().Archives)
}

func TestScanNestedVolumesTravelTogether(t *testing.T) {
	inner := buildZip(t, file("Lib/library.txt", strings.Repeat("x", 2048)))
	third := (len(inner) + 2) / 3
	p := writeZip(t, filepath.Join(t.TempDir(), "outer.zip"),
		file("set/pack.zip.001", string(inner[:third])),
		file("set/pack.zip.002", string(inner[third:2*third])),
		file("set/pack.zip.003", string(inner[2*third:])),
	)
	items := scan(t, quietEngine(t), p, nil, "")
	require.Len(t, items, 1)
	assert.Equal(t, "set/pack.zip.001", items[0].Chain.Hops[0].InternalPath)
	assert.Equal(t, "Lib", items[0].Chain.FinalRoot)
}

func TestScanBrokenNestedIsSkipped(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "outer.zip"),
		file("broken.zip", "garbage"),
		file("Lib/library.txt", "A"),
	)
	sc := NewScanContext()
	items, err := quietEngine(t).Scan(context.Background(), p, sc, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"scenery-library:Lib:Lib"}, summary(items))
	assert.Equal(t, 1, sc.Stats().NestedSkipped)
}

// corruptFirstEntry flips bytes inside the compressed data of the first
// entry of a zip so it lists fine but fails to decode.
func corruptFirstEntry(t *testing.T, data []byte) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	nameLen := int(binary.LittleEndian.Uint16(out[26:]))
	extraLen := int(binary.LittleEndian.Uint16(out[28:]))
	start := 30 + nameLen + extraLen
	require.Greater(t, len(out), start+16)
	for i := start + 4; i < start+12; i++ {
		out[i] ^= 0xff
	}
	return out
}

func TestScanCorruptNestedSiblingIsSkippedAlone(t *testing.T) {
	bad := buildZip(t, file("Bad/library.txt", strings.Repeat("A\n800\nLIBRARY\n", 20)))
	good := buildZip(t, file("Good/library.txt", "A\n800\nLIBRARY\n"))
	raw := buildZip(t,
		file("a.zip", string(bad)),
		file("b.zip", string(good)),
	)
	p := filepath.Join(t.TempDir(), "outer.zip")
	writeBytes(t, p, corruptFirstEntry(t, raw))

	sc := NewScanContext()
	items, err := quietEngine(t).Scan(context.Background(), p, sc, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"scenery-library:Good:Good"}, summary(items))
	assert.Equal(t, 1, sc.Stats().NestedSkipped)
}

func TestScanNestedEntryUnderOtherPasswordIsReported(t *testing.T) {
	inner := buildZip(t, file("Inner/library.txt", "A\n800\nLIBRARY\n"))
	p := writeZip(t, filepath.Join(t.TempDir(), "outer.zip"),
		locked("Lib/library.txt", "A", "outer-pw"),
		locked("other.zip", string(inner), "different-pw"),
		file("plain.zip", string(inner)),
	)
	sc := NewScanContext()
	items, err := quietEngine(t).Scan(context.Background(), p, sc, "outer-pw")
	require.Error(t, err)
	assert.Equal(t, []string{
		"scenery-library:Lib:Lib",
		"scenery-library:Inner:Inner",
	}, summary(items))

	var npe *NestedPasswordRequiredError
	require.ErrorAs(t, err, &npe)
	assert.Equal(t, p, npe.Parent)
	assert.Equal(t, "other.zip", npe.Nested)
	assert.True(t, npe.BadPassword)
	assert.Equal(t, 0, sc.Stats().NestedSkipped)
}

func TestScanDeterministic(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "mix.zip"),
		file("B/library.txt", "A"),
		file("A/library.txt", "A"),
		file("Scripts/z.lua", ""),
		file("Scripts/a.lua", ""),
		file("Plug/64/p.xpl", ""),
		file("Plane/Plane.acf", ""),
		file("Plane/plugins/x/x.xpl", ""),
		file("Tile/Earth nav data/+1+1/+1+1.dsf", ""),
	)
	e := quietEngine(t)
	first := scan(t, e, p, nil, "")
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, scan(t, e, p, nil, ""))
	}
	assert.Equal(t, []string{
		"aircraft:Plane:Plane",
		"scenery-library:A:A",
		"scenery-library:B:B",
		"script:Scripts:Scripts",
		"plugin:Plug:Plug",
		"scenery-tile:Tile:Tile",
	}, summary(first))
}

func TestScanRootsAreNeverNested(t *testing.T) {
	tests := []struct {
		name    string
		entries []zipEntry
		want    []string
	}{
		{
			name: "shallow markers first",
			entries: []zipEntry{
				file("Pack/library.txt", "A"),
				file("Pack/Sub/library.txt", "A"),
				file("Pack/Sub/Earth nav data/+1+1/+1+1.dsf", ""),
				file("Pack/Sub/Deeper/x.lua", ""),
				file("Other/Earth nav data/+1+1/+1+1.dsf", ""),
				file("Other/plugins/p/64/p.xpl", ""),
			},
			want: []string{
				"scenery-library:Pack:Pack",
				"scenery-tile:Other:Other",
			},
		},
		{
			name: "deep tile encloses earlier script",
			entries: []zipEntry{
				file("Tile/Earth nav data/+40-080/+40-080.dsf", ""),
				file("Tile/scripts/helper.lua", ""),
			},
			want: []string{"scenery-tile:Tile:Tile"},
		},
		{
			name: "deep tile encloses library and plugin",
			entries: []zipEntry{
				file("Region/Earth nav data/+40-080/+40-080.dsf", ""),
				file("Region/lib/library.txt", "A"),
				file("Region/tools/win/tool.xpl", ""),
				file("Keep/library.txt", "A"),
			},
			want: []string{
				"scenery-library:Keep:Keep",
				"scenery-tile:Region:Region",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeZip(t, filepath.Join(t.TempDir(), "overlap.zip"), tt.entries...)
			items := scan(t, quietEngine(t), p, nil, "")
			for i, a := range items {
				for j, b := range items {
					if i == j || a.InternalRoot == "" || b.InternalRoot == "" {
						continue
					}
					assert.False(t, strings.HasPrefix(b.InternalRoot+"/", a.InternalRoot+"/"),
						"%s contains %s", a.InternalRoot, b.InternalRoot)
				}
			}
			assert.Equal(t, tt.want, summary(items))
		})
	}
}

func TestScanCanceled(t *testing.T) {
	p := deepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quietEngine(t).Scan(ctx, p, nil, "")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScanProgressEvents(t *testing.T) {
	p := deepFixture(t)
	var names []string
	c := &Counter{OnFile: func(name string, phase Phase, _ uint64) {
		if phase == PhaseScan {
			names = append(names, name)
		}
	}}
	scan(t, quietEngine(t, WithProgress(c)), p, nil, "")
	assert.Equal(t, []string{p, p + "/mid.zip", p + "/mid.zip/deep/inner.zip"}, names)
}
