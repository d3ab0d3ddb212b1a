package store

import (
	"slices"
	"sort"
)

// Catalog is the full snapshot of known media plus the popularity
// percentile of every entry, computed once at load.
type Catalog struct {
	entries    []Media
	byID       map[int]int
	percentile map[int]float64
	maxID      int
}

// NewCatalog indexes entries. Duplicate ids keep their first occurrence.
func NewCatalog(entries []Media) *Catalog {
	c := &Catalog{
		entries:    make([]Media, 0, len(entries)),
		byID:       make(map[int]int, len(entries)),
		percentile: make(map[int]float64, len(entries)),
	}
	for _, m := range entries {
		if _, dup := c.byID[m.ID]; dup {
			continue
		}
		c.byID[m.ID] = len(c.entries)
		c.entries = append(c.entries, m)
		if m.ID > c.maxID {
			c.maxID = m.ID
		}
	}
	c.rankPopularity()
	return c
}

// rankPopularity orders entries by ascending popularity and maps rank r to
// 100*r/(n-1). Ties share the lowest rank of their run.
func (c *Catalog) rankPopularity() {
	n := len(c.entries)
	if n == 0 {
		return
	}
	if n == 1 {
		c.percentile[c.entries[0].ID] = 100
		return
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.entries[order[a]].Popularity < c.entries[order[b]].Popularity
	})
	rank := 0
	for i, idx := range order {
		if i > 0 && c.entries[idx].Popularity != c.entries[order[i-1]].Popularity {
			rank = i
		}
		c.percentile[c.entries[idx].ID] = 100 * float64(rank) / float64(n-1)
	}
}

// Percentile reports the popularity percentile of id within the catalog.
func (c *Catalog) Percentile(id int) (float64, bool) {
	p, ok := c.percentile[id]
	return p, ok
}

func (c *Catalog) Lookup(id int) (Media, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Media{}, false
	}
	return c.entries[i], true
}

// MaxID is the largest identifier in the catalog, 0 when empty.
func (c *Catalog) MaxID() int {
	return c.maxID
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

func (c *Catalog) Entries() []Media {
	return slices.Clone(c.entries)
}
