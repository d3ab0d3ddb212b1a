package store

import (
	"fmt"
	"strings"
)

// Season is the airing quarter of an anime. The empty value means unknown.
type Season string

const (
	Winter Season = "WINTER"
	Spring Season = "SPRING"
	Summer Season = "SUMMER"
	Fall   Season = "FALL"
)

// Ordinal returns WINTER=0 .. FALL=3, or -1 for an unknown season.
func (s Season) Ordinal() int {
	switch s {
	case Winter:
		return 0
	case Spring:
		return 1
	case Summer:
		return 2
	case Fall:
		return 3
	}
	return -1
}

func ParseSeason(v string) (Season, error) {
	s := Season(strings.ToUpper(strings.TrimSpace(v)))
	if s.Ordinal() < 0 {
		return "", fmt.Errorf("invalid season %q (want WINTER, SPRING, SUMMER or FALL)", v)
	}
	return s, nil
}

// Media is a catalog entry. It is treated as immutable once fetched.
type Media struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	Popularity int      `json:"popularity"`
	Year       *int     `json:"seasonYear,omitempty"`
	Season     Season   `json:"season,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// ListEntryID is set only when the media is on the list it was fetched
	// from. It goes stale as soon as that list changes remotely.
	ListEntryID *int   `json:"listEntryId,omitempty"`
	ListStatus  string `json:"listStatus,omitempty"`
}

func (m Media) String() string {
	return fmt.Sprintf("%d %s", m.ID, m.Title)
}
