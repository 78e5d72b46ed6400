package addonkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCacheHit(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "lib.zip"), file("Lib/library.txt", "A"))
	cache := NewScanCache(8, time.Minute)
	c := &Counter{}
	e := quietEngine(t, WithCache(cache), WithProgress(c))

	first := scan(t, e, p, nil, "")
	assert.Equal(t, uint64(1), c.Files())
	assert.Equal(t, 1, cache.Len())

	first[0].DisplayName = "mutated"
	second := scan(t, e, p, nil, "")
	assert.Equal(t, uint64(1), c.Files(), "cache hit must not reopen the archive")
	assert.Equal(t, "Lib", second[0].DisplayName)

	cache.Purge()
	scan(t, e, p, nil, "")
	assert.Equal(t, uint64(2), c.Files())
}

func TestScanCacheSkipsPartialResults(t *testing.T) {
	p := nestedFixture(t)
	cache := NewScanCache(8, time.Minute)
	e := quietEngine(t, WithCache(cache))
	_, err := e.Scan(context.Background(), p, nil, "")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestScanCacheKey(t *testing.T) {
	p := writeZip(t, filepath.Join(t.TempDir(), "k.zip"), file("a.lua", ""))
	sc := NewScanContext()
	k1, err := scanCacheKey(defaultFS, p, "", sc)
	require.NoError(t, err)
	k2, err := scanCacheKey(defaultFS, p, "pw", sc)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	sc.SetNestedPassword(p, "x.zip", "pw")
	k3, err := scanCacheKey(defaultFS, p, "", sc)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := scanCacheKey(defaultFS, p, "", NewScanContextWithDepth(1))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
	assert.NotContains(t, k2, "pw")
}

func TestScanCacheKeyCoversEveryVolume(t *testing.T) {
	d := t.TempDir()
	data := buildZip(t, file("Pack/library.txt", "A\n800\nLIBRARY\n"), file("Pack/a.obj", "obj"))
	vols := splitInto(t, filepath.Join(d, "Pack.zip"), data, 3)
	sc := NewScanContext()

	k1, err := scanCacheKey(defaultFS, vols[0], "", sc)
	require.NoError(t, err)
	fromLast, err := scanCacheKey(defaultFS, vols[2], "", sc)
	require.NoError(t, err)
	assert.Equal(t, k1, fromLast)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(vols[2], later, later))
	k2, err := scanCacheKey(defaultFS, vols[0], "", sc)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	b, err := os.ReadFile(vols[1])
	require.NoError(t, err)
	writeBytes(t, vols[1], append(b, 0))
	require.NoError(t, os.Chtimes(vols[1], later, later))
	k3, err := scanCacheKey(defaultFS, vols[0], "", sc)
	require.NoError(t, err)
	assert.NotEqual(t, k2, k3)
}

func TestScanCacheMissesAfterLaterVolumeChanges(t *testing.T) {
	d := t.TempDir()
	data := buildZip(t, file("Pack/library.txt", "A\n800\nLIBRARY\n"), file("Pack/a.obj", "obj"))
	vols := splitInto(t, filepath.Join(d, "Pack.zip"), data, 2)
	cache := NewScanCache(8, time.Minute)
	c := &Counter{}
	e := quietEngine(t, WithCache(cache), WithProgress(c))

	scan(t, e, vols[0], nil, "")
	scan(t, e, vols[0], nil, "")
	assert.Equal(t, uint64(1), c.Files())

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(vols[1], later, later))
	scan(t, e, vols[0], nil, "")
	assert.Equal(t, uint64(2), c.Files())
}
