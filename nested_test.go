package addonkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFSDiscoversInternalVolumes(t *testing.T) {
	efs := newEntryFS([]Entry{
		{Name: "sub", IsDir: true},
		{Name: "sub/pack.part2.rar", Size: 10},
		{Name: "sub/pack.part1.rar", Size: 10},
		{Name: "sub/readme.txt", Size: 1},
		{Name: "top.7z", Size: 3},
	})
	assert.Equal(t, "sub/pack.part1.rar", NormalizeEntryPathFS(efs, "sub/pack.part2.rar"))
	vols, err := DiscoverVolumesFS(efs, "sub/pack.part2.rar")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/pack.part1.rar", "sub/pack.part2.rar"}, vols)

	vols, err = DiscoverVolumesFS(efs, "top.7z")
	require.NoError(t, err)
	assert.Equal(t, []string{"top.7z"}, vols)

	fi, err := efs.Stat("top.7z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fi.Size())
	_, err = efs.Open("top.7z")
	assert.Error(t, err)
	_, err = efs.ReadDir("nowhere")
	assert.Error(t, err)
}

func TestFoldHop(t *testing.T) {
	it := DetectedItem{Type: Script, InternalRoot: "", DisplayName: "x"}
	it = foldHop(it, ArchiveHop{InternalPath: "b/inner.zip", Format: FormatZip}, "inner")
	assert.Equal(t, "inner", it.DisplayName)
	assert.Equal(t, "", it.Chain.FinalRoot)

	it = foldHop(it, ArchiveHop{InternalPath: "mid.7z", Format: FormatSevenZip}, "mid")
	assert.Equal(t, "inner", it.DisplayName)
	assert.Equal(t, []ArchiveHop{
		{InternalPath: "mid.7z", Format: FormatSevenZip},
		{InternalPath: "b/inner.zip", Format: FormatZip},
	}, it.Chain.Hops)

	rooted := foldHop(DetectedItem{Type: Plugin, InternalRoot: "P", DisplayName: "P"}, ArchiveHop{InternalPath: "a.zip"}, "a")
	assert.Equal(t, "P", rooted.DisplayName)
	assert.Equal(t, "P", rooted.Chain.FinalRoot)
	assert.Equal(t, "", rooted.InternalRoot)
}
