package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomNamesShape(t *testing.T) {
	t.Parallel()

	src := newRandomNames(newTestRand(11), ".com.", 0)
	for i := 0; i < 1000; i++ {
		name := src.Next()
		require.Len(t, name, len("abcd.com"), name)
		require.True(t, strings.HasSuffix(name, ".com"), name)
		for _, r := range name[:4] {
			require.Contains(t, nameCharset, string(r))
		}
		_, err := encodedNameLen(name)
		require.NoError(t, err)
	}

	bare := newRandomNames(newTestRand(12), "", 0)
	assert.Len(t, bare.Next(), 4)
}

func TestRandomNamesRepeat(t *testing.T) {
	t.Parallel()

	src := newRandomNames(newTestRand(13), "com", defaultRepeatChance)
	const draws = 100000
	repeats := 0
	prev := src.Next()
	for i := 0; i < draws; i++ {
		name := src.Next()
		if name == prev {
			repeats++
		}
		prev = name
	}
	// Fresh names collide with the previous one only 1 in 36^4 times.
	assert.InDelta(t, defaultRepeatChance, float64(repeats)/draws, 0.005)
}

func TestRandomNamesScripted(t *testing.T) {
	t.Parallel()

	rng := &scriptedRand{
		ints:   []int{0, 1, 26, 35, 2, 2, 2, 2},
		floats: []float64{0.1, 0.9},
	}
	src := newRandomNames(rng, "test", 0.5)
	assert.Equal(t, "ab09.test", src.Next())
	assert.Equal(t, "ab09.test", src.Next())
	assert.Equal(t, "cccc.test", src.Next())
}

func TestFixedAndListNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "only.test", fixedName("only.test").Next())

	list := &listNames{rng: &scriptedRand{ints: []int{2, 0}}, names: []string{"a", "b", "c"}}
	assert.Equal(t, "c", list.Next())
	assert.Equal(t, "a", list.Next())
}

func TestFakeNames(t *testing.T) {
	t.Parallel()

	src := newFakeNames(newTestRand(1))
	for i := 0; i < 1000; i++ {
		name := src.Next()
		require.Equal(t, 1, strings.Count(name, "."), name)
		require.NotContains(t, name, " ")
		require.Equal(t, strings.ToLower(name), name)
		_, err := encodedNameLen(name)
		require.NoError(t, err, name)
	}
}

func TestFakeNamesScripted(t *testing.T) {
	t.Parallel()

	src := newFakeNames(&scriptedRand{ints: []int{0, 0, 0}})
	want := strings.ToLower(data.Job["descriptor"][0]+data.Company["bs"][0]) + "." + data.Internet["domain_suffix"][0]
	assert.Equal(t, want, src.Next())

	// Equal seeds give equal sequences.
	a, b := newFakeNames(newTestRand(77)), newFakeNames(newTestRand(77))
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestReadNamesFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "names.txt")
	body := `# popular names
www.example.test

mail.example.test.   IN A 192.0.2.1
  bücher.example
	# indented comment
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	names, err := readNamesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"www.example.test",
		"mail.example.test.",
		"xn--bcher-kva.example",
	}, names)
}

func TestReadNamesFromFileErrors(t *testing.T) {
	t.Parallel()

	_, err := readNamesFromFile(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "error opening file")

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n\n"), 0o644))
	_, err = readNamesFromFile(path)
	assert.ErrorContains(t, err, "no names found")
}

func TestNewNameSource(t *testing.T) {
	t.Parallel()

	rng := newTestRand(1)
	cfg := DefaultConfig()

	src, err := newNameSource(cfg, rng)
	require.NoError(t, err)
	assert.IsType(t, &randomNames{}, src)

	cfg.NameMode = NameModeFixed
	cfg.Name = "pinned.test"
	src, err = newNameSource(cfg, rng)
	require.NoError(t, err)
	assert.Equal(t, "pinned.test", src.Next())

	cfg.NameMode = NameModeFile
	cfg.NamesFile = filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(cfg.NamesFile, []byte("one.test\n"), 0o644))
	src, err = newNameSource(cfg, rng)
	require.NoError(t, err)
	assert.Equal(t, "one.test", src.Next())

	cfg.NameMode = "bogus"
	_, err = newNameSource(cfg, rng)
	assert.Error(t, err)
}
