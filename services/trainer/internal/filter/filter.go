// Package filter turns the optional sampling filters into a conjunction of
// plain clause values. Each clause is evaluated by one dispatch function, so
// a predicate can be logged, compared and tested without running it.
package filter

import (
	"fmt"
	"strings"

	"github.com/example/amq-trainer/services/trainer/internal/store"
)

type Kind int

const (
	Year Kind = iota
	Season
	Popularity
	PopularityPercent
	Genres
	Tags
)

func (k Kind) String() string {
	switch k {
	case Year:
		return "year"
	case Season:
		return "season"
	case Popularity:
		return "popularity"
	case PopularityPercent:
		return "popularity_percent"
	case Genres:
		return "genres"
	case Tags:
		return "tags"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Bound int

const (
	Min Bound = iota
	Max
)

// Clause is one filter. Numeric kinds use Bound and Value (season values are
// ordinals); Genres and Tags use Names, stored lower-cased.
type Clause struct {
	Kind  Kind
	Bound Bound
	Value float64
	Names []string
}

func (c Clause) String() string {
	switch c.Kind {
	case Genres, Tags:
		return fmt.Sprintf("%s in [%s]", c.Kind, strings.Join(c.Names, ","))
	}
	op := ">="
	if c.Bound == Max {
		op = "<="
	}
	return fmt.Sprintf("%s %s %v", c.Kind, op, c.Value)
}

// Percentiles resolves the catalog-wide popularity percentile of a media id.
type Percentiles interface {
	Percentile(id int) (float64, bool)
}

// Predicate is a conjunction of clauses. The empty predicate matches every
// entry; a nil entry never matches.
type Predicate []Clause

func (p Predicate) Match(m *store.Media, pct Percentiles) bool {
	if m == nil {
		return false
	}
	for _, c := range p {
		if !matchClause(c, m, pct) {
			return false
		}
	}
	return true
}

func (p Predicate) String() string {
	if len(p) == 0 {
		return "all"
	}
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

func matchClause(c Clause, m *store.Media, pct Percentiles) bool {
	switch c.Kind {
	case Year:
		if m.Year == nil {
			return false
		}
		return inBound(c, float64(*m.Year))
	case Season:
		ord := m.Season.Ordinal()
		if ord < 0 {
			return false
		}
		return inBound(c, float64(ord))
	case Popularity:
		return inBound(c, float64(m.Popularity))
	case PopularityPercent:
		if pct == nil {
			return false
		}
		p, ok := pct.Percentile(m.ID)
		if !ok {
			return false
		}
		return inBound(c, p)
	case Genres:
		return anyOf(c.Names, m.Genres)
	case Tags:
		return anyOf(c.Names, m.Tags)
	}
	return false
}

func inBound(c Clause, v float64) bool {
	if c.Bound == Max {
		return v <= c.Value
	}
	return v >= c.Value
}

func anyOf(want, have []string) bool {
	for _, h := range have {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Options are the user-facing filters. Nil pointers and empty slices are
// omitted from the predicate.
type Options struct {
	MinYear, MaxYear                           *int
	MinSeason, MaxSeason                       *store.Season
	MinPopularity, MaxPopularity               *int
	MinPopularityPercent, MaxPopularityPercent *float64
	Genres, Tags                               []string
}

func Build(o Options) Predicate {
	var p Predicate
	addInt := func(k Kind, b Bound, v *int) {
		if v != nil {
			p = append(p, Clause{Kind: k, Bound: b, Value: float64(*v)})
		}
	}
	addSeason := func(b Bound, s *store.Season) {
		if s != nil && s.Ordinal() >= 0 {
			p = append(p, Clause{Kind: Season, Bound: b, Value: float64(s.Ordinal())})
		}
	}
	addFloat := func(k Kind, b Bound, v *float64) {
		if v != nil {
			p = append(p, Clause{Kind: k, Bound: b, Value: *v})
		}
	}
	addNames := func(k Kind, names []string) {
		norm := normalize(names)
		if len(norm) > 0 {
			p = append(p, Clause{Kind: k, Names: norm})
		}
	}

	addInt(Year, Min, o.MinYear)
	addInt(Year, Max, o.MaxYear)
	addSeason(Min, o.MinSeason)
	addSeason(Max, o.MaxSeason)
	addInt(Popularity, Min, o.MinPopularity)
	addInt(Popularity, Max, o.MaxPopularity)
	addFloat(PopularityPercent, Min, o.MinPopularityPercent)
	addFloat(PopularityPercent, Max, o.MaxPopularityPercent)
	addNames(Genres, o.Genres)
	addNames(Tags, o.Tags)
	return p
}

func normalize(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
