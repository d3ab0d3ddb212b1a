// Package sampling draws reproducible pseudo-random subsets of media sets.
//
// Each identifier gets a rank derived from the seed and the identifier alone,
// and entries are visited in ascending rank. This orders the identifier space
// as a seeded permutation would, without materialising it: for a fixed seed
// two identifiers keep their relative order regardless of which set they are
// drawn from, how many entries are requested, or how far the caller has paged
// with Offset.
package sampling

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"github.com/example/amq-trainer/services/trainer/internal/filter"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

type Request struct {
	Size   int
	Offset int
	// Seed makes the draw reproducible. Nil draws from a random source.
	Seed   *uint64
	Filter filter.Predicate
}

type Sampler struct {
	Percentiles filter.Percentiles
}

// New builds a Sampler over the catalog's percentiles.
func New(c *store.Catalog) Sampler {
	return Sampler{Percentiles: c}
}

// Sample returns up to req.Size entries of source that satisfy req.Filter,
// skipping the first req.Offset matches in rank order. A short or empty pool
// yields a short or empty result, never an error.
func (s Sampler) Sample(source []store.Media, req Request) []store.Media {
	if req.Size <= 0 || len(source) == 0 {
		return []store.Media{}
	}
	offset := max(req.Offset, 0)
	seed := seedOf(req.Seed)

	seen := make(map[int]struct{}, len(source))
	ranked := make([]rankedMedia, 0, len(source))
	for i := range source {
		m := &source[i]
		if m.ID < 0 {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		ranked = append(ranked, rankedMedia{rank: rank(seed, m.ID), m: m})
	}
	slices.SortFunc(ranked, func(a, b rankedMedia) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(a.m.ID, b.m.ID)
	})

	out := make([]store.Media, 0, min(req.Size, len(ranked)))
	skipped := 0
	for _, r := range ranked {
		if !req.Filter.Match(r.m, s.Percentiles) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *r.m)
		if len(out) == req.Size {
			break
		}
	}
	return out
}

type rankedMedia struct {
	rank uint64
	m    *store.Media
}

// rank is the position key of id under seed. It depends on nothing else.
func rank(seed uint64, id int) uint64 {
	return rand.NewPCG(seed, uint64(id)).Uint64()
}

func seedOf(seed *uint64) uint64 {
	if seed == nil {
		return rand.Uint64()
	}
	return *seed
}
