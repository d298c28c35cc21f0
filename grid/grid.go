/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package grid builds shuffled boards of paired sound identifiers.
package grid

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/Seednode/soundbox/sounds"
)

var (
	ErrCatalogExhausted = errors.New("catalog has too few distinct sounds")
	ErrInvalidPairs     = errors.New("pair count must not be negative")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMalformedGrid    = errors.New("malformed grid")
)

// Grid is an ordered sequence of sound identifiers in which every
// identifier appears exactly twice.
type Grid []string

// Pairs returns the number of distinct identifiers in g.
func (g Grid) Pairs() int {
	return len(g) / 2
}

// Clone returns a copy of g that callers may modify freely.
func (g Grid) Clone() Grid {
	return slices.Clone(g)
}

// Validate reports whether g has even length and every identifier in it
// appears exactly twice.
func Validate(g Grid) error {
	if len(g)%2 != 0 {
		return fmt.Errorf("%w: odd length %d", ErrMalformedGrid, len(g))
	}

	counts := make(map[string]int, len(g)/2)
	for _, s := range g {
		counts[s]++
	}

	for s, n := range counts {
		if n != 2 {
			return fmt.Errorf("%w: %q appears %d times", ErrMalformedGrid, s, n)
		}
	}

	return nil
}

// DefaultPairs is the pair count used when a board covers its whole catalog.
func DefaultPairs(catalog []sounds.Entry) int {
	return len(catalog) / 2
}

// ShuffleFunc reorders cards in place using r.
type ShuffleFunc func(r *rand.Rand, cards []string)

// FisherYates is a uniform random permutation.
func FisherYates(r *rand.Rand, cards []string) {
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// ComparatorShuffle sorts cards with a comparator that returns a random
// sign. The resulting permutation is not uniform: cards tend to stay near
// their starting position. It matches boards dealt by older clients.
func ComparatorShuffle(r *rand.Rand, cards []string) {
	slices.SortStableFunc(cards, func(_, _ string) int {
		if r.IntN(2) == 0 {
			return -1
		}
		return 1
	})
}

// Builder deals grids from a catalog. It is safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	rng     *rand.Rand
	shuffle ShuffleFunc
	budget  int
}

type Option func(*Builder)

// WithRand makes the builder draw from r.
func WithRand(r *rand.Rand) Option {
	return func(b *Builder) {
		b.rng = r
	}
}

// WithSeed makes the builder deterministic for a given seed.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// WithShuffle replaces the default Fisher-Yates shuffle.
func WithShuffle(f ShuffleFunc) Option {
	return func(b *Builder) {
		b.shuffle = f
	}
}

// WithDrawBudget caps the number of random draws a single Build may make.
// Zero restores the default, which scales with catalog size.
func WithDrawBudget(n int) Option {
	return func(b *Builder) {
		b.budget = n
	}
}

func New(opts ...Option) *Builder {
	b := &Builder{
		shuffle: FisherYates,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.rng == nil {
		b.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return b
}

func (b *Builder) drawBudget(catalogSize int) int {
	if b.budget > 0 {
		return b.budget
	}

	return 64 + 8*catalogSize*(bits.Len(uint(catalogSize))+1)
}

// Build picks pairs distinct identifiers from catalog at random, places
// each twice, and shuffles the result.
func (b *Builder) Build(catalog []sounds.Entry, pairs int) (Grid, error) {
	switch {
	case pairs < 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPairs, pairs)
	case pairs == 0:
		return Grid{}, nil
	}

	if n := len(sounds.Distinct(catalog)); n < pairs {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrCatalogExhausted, pairs, n)
	}

	budget := b.drawBudget(len(catalog))

	b.mu.Lock()
	defer b.mu.Unlock()

	chosen := make(map[string]struct{}, pairs)
	order := make([]string, 0, pairs)

	for draws := 0; len(order) < pairs; draws++ {
		if draws >= budget {
			return nil, fmt.Errorf("%w: found %d of %d after %d draws", ErrCatalogExhausted, len(order), pairs, draws)
		}

		s := catalog[b.rng.IntN(len(catalog))].Sound
		if s == "" {
			continue
		}

		if _, ok := chosen[s]; ok {
			continue
		}

		chosen[s] = struct{}{}
		order = append(order, s)
	}

	cards := make(Grid, 0, 2*pairs)
	cards = append(cards, order...)
	cards = append(cards, order...)

	b.shuffle(b.rng, cards)

	return cards, nil
}

// Sample draws amount entries from catalog without replacement.
func (b *Builder) Sample(catalog []sounds.Entry, amount int) ([]sounds.Entry, error) {
	if amount < 1 || amount > len(catalog) {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidAmount, amount, len(catalog))
	}

	picked := slices.Clone(catalog)

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range amount {
		j := i + b.rng.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}

	return picked[:amount], nil
}
