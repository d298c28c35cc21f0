package grid

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Seednode/soundbox/sounds"
)

func catalogOf(names ...string) []sounds.Entry {
	entries := make([]sounds.Entry, len(names))
	for i, n := range names {
		entries[i] = sounds.Entry{Sound: n}
	}
	return entries
}

func numberedCatalog(n int) []sounds.Entry {
	entries := make([]sounds.Entry, n)
	for i := range entries {
		entries[i] = sounds.Entry{Sound: fmt.Sprintf("clip-%03d.mp3", i)}
	}
	return entries
}

func TestProperty_BuildPairsEveryIdentifier(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 2, 40, rapid.ID[string]).Draw(t, "names")
		if len(names)%2 != 0 {
			names = names[:len(names)-1]
		}
		catalog := catalogOf(names...)
		seed := rapid.Uint64().Draw(t, "seed")

		k := DefaultPairs(catalog)
		g, err := New(WithSeed(seed)).Build(catalog, k)
		if err != nil {
			t.Fatalf("build: %v", err)
		}

		if len(g) != 2*k {
			t.Fatalf("len = %d, want %d", len(g), 2*k)
		}

		counts := map[string]int{}
		for _, s := range g {
			counts[s]++
		}
		if len(counts) != k {
			t.Fatalf("distinct = %d, want %d", len(counts), k)
		}
		for s, n := range counts {
			if n != 2 {
				t.Fatalf("%q appears %d times", s, n)
			}
			if !slices.Contains(names, s) {
				t.Fatalf("%q is not in the catalog", s)
			}
		}
	})
}

func TestProperty_BuildSubsetPairs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 60).Draw(t, "size")
		k := rapid.IntRange(0, size).Draw(t, "k")

		g, err := New(WithSeed(rapid.Uint64().Draw(t, "seed"))).Build(numberedCatalog(size), k)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := Validate(g); err != nil {
			t.Fatalf("validate: %v", err)
		}
		if g.Pairs() != k {
			t.Fatalf("pairs = %d, want %d", g.Pairs(), k)
		}
	})
}

func TestBuildZeroPairs(t *testing.T) {
	g, err := New().Build(numberedCatalog(4), 0)
	require.NoError(t, err)
	assert.Empty(t, g)
	assert.NotNil(t, g)

	g, err = New().Build(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, g)
}

func TestBuildNegativePairs(t *testing.T) {
	_, err := New().Build(numberedCatalog(4), -1)
	assert.ErrorIs(t, err, ErrInvalidPairs)
}

func TestBuildCatalogExhausted(t *testing.T) {
	b := New(WithSeed(1))

	_, err := b.Build(catalogOf("a", "a", "b", "b"), 3)
	assert.ErrorIs(t, err, ErrCatalogExhausted)

	_, err = b.Build(nil, 1)
	assert.ErrorIs(t, err, ErrCatalogExhausted)

	_, err = b.Build(catalogOf("", "", "a", "a"), 2)
	assert.ErrorIs(t, err, ErrCatalogExhausted)
}

func TestBuildDrawBudget(t *testing.T) {
	_, err := New(WithSeed(7), WithDrawBudget(1)).Build(catalogOf("a", "b"), 2)
	assert.ErrorIs(t, err, ErrCatalogExhausted)

	g, err := New(WithSeed(7), WithDrawBudget(1)).Build(catalogOf("a", "b"), 1)
	require.NoError(t, err)
	assert.Len(t, g, 2)
}

func TestBuildSeedIsDeterministic(t *testing.T) {
	catalog := numberedCatalog(32)

	a, err := New(WithSeed(42)).Build(catalog, 16)
	require.NoError(t, err)
	b, err := New(WithSeed(42)).Build(catalog, 16)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildOrderVaries(t *testing.T) {
	catalog := numberedCatalog(8)
	b := New(WithSeed(3))

	first, err := b.Build(catalog, 4)
	require.NoError(t, err)

	differs := 0
	for range 50 {
		next, err := b.Build(catalog, 4)
		require.NoError(t, err)
		if !slices.Equal(first, next) {
			differs++
		}
	}

	assert.Greater(t, differs, 45)
}

func TestBuildConcurrent(t *testing.T) {
	b := New()
	catalog := numberedCatalog(20)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				g, err := b.Build(catalog, 10)
				assert.NoError(t, err)
				assert.NoError(t, Validate(g))
			}
		}()
	}
	wg.Wait()
}

func TestComparatorShuffleKeepsPairs(t *testing.T) {
	g, err := New(WithSeed(9), WithShuffle(ComparatorShuffle)).Build(numberedCatalog(30), 15)
	require.NoError(t, err)
	assert.NoError(t, Validate(g))
	assert.Len(t, g, 30)
}

// The comparator shuffle leaves the first card in place far more often than
// the 1/n a uniform permutation would.
func TestComparatorShuffleIsBiased(t *testing.T) {
	const (
		n      = 8
		trials = 4000
	)
	r := rand.New(rand.NewPCG(1, 2))

	stay := map[string]int{}
	for range trials {
		cards := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		ComparatorShuffle(r, cards)
		stay["comparator"] += boolInt(cards[0] == "a")

		cards = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		FisherYates(r, cards)
		stay["uniform"] += boolInt(cards[0] == "a")
	}

	assert.InDelta(t, float64(trials)/n, float64(stay["uniform"]), float64(trials)/n*0.3)
	assert.Greater(t, stay["comparator"], 2*trials/n)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Grid{}))
	assert.NoError(t, Validate(Grid{"a", "b", "b", "a"}))
	assert.ErrorIs(t, Validate(Grid{"a", "a", "b"}), ErrMalformedGrid)
	assert.ErrorIs(t, Validate(Grid{"a", "a", "a", "a"}), ErrMalformedGrid)
	assert.ErrorIs(t, Validate(Grid{"a", "b", "c", "a"}), ErrMalformedGrid)
}

func TestSample(t *testing.T) {
	catalog := numberedCatalog(10)
	b := New(WithSeed(5))

	for _, amount := range []int{0, -2, 11} {
		_, err := b.Sample(catalog, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}

	for _, amount := range []int{1, 4, 10} {
		got, err := b.Sample(catalog, amount)
		require.NoError(t, err)
		require.Len(t, got, amount)

		seen := map[string]bool{}
		for _, e := range got {
			assert.Contains(t, catalog, e)
			assert.False(t, seen[e.Sound], "duplicate %q", e.Sound)
			seen[e.Sound] = true
		}
	}

	assert.Equal(t, "clip-000.mp3", catalog[0].Sound, "catalog must not be reordered")
}
