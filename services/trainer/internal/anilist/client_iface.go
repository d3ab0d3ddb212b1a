package anilist

import (
	"context"

	"github.com/example/amq-trainer/services/trainer/internal/store"
)

// Provider is the port for reading and mutating AniList anime lists.
type Provider interface {
	FetchUserList(ctx context.Context, user string) ([]store.Media, error)
	FetchCatalog(ctx context.Context) ([]store.Media, error)
	Viewer(ctx context.Context) (User, error)
	SaveEntry(ctx context.Context, mediaID int, status Status) (Entry, error)
	UpdateEntries(ctx context.Context, entryIDs []int, status Status) ([]Entry, error)
	DeleteEntry(ctx context.Context, entryID int) (bool, error)
}

var _ Provider = (*Client)(nil)
