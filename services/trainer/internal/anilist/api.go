package anilist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/amq-trainer/services/trainer/internal/store"
)

const perPage = 50

// maxPages bounds paging loops in case the server never reports the end.
const maxPages = 1000

// Status is an AniList MediaListStatus.
type Status string

const (
	StatusCurrent   Status = "CURRENT"
	StatusPlanning  Status = "PLANNING"
	StatusCompleted Status = "COMPLETED"
	StatusDropped   Status = "DROPPED"
	StatusPaused    Status = "PAUSED"
	StatusRepeating Status = "REPEATING"
)

var statuses = []Status{StatusCurrent, StatusPlanning, StatusCompleted, StatusDropped, StatusPaused, StatusRepeating}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	for _, known := range statuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid list status %q", v)
}

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Entry is a list entry returned by a mutation.
type Entry struct {
	ID      int
	MediaID int
	Title   string
	Status  Status
}

type title struct {
	Romaji  string `json:"romaji"`
	English string `json:"english"`
}

func (t title) best() string {
	if t.Romaji != "" {
		return t.Romaji
	}
	return t.English
}

type mediaNode struct {
	ID         int      `json:"id"`
	Title      title    `json:"title"`
	Popularity int      `json:"popularity"`
	SeasonYear *int     `json:"seasonYear"`
	Season     string   `json:"season"`
	Genres     []string `json:"genres"`
	Tags       []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func (n mediaNode) toMedia() store.Media {
	m := store.Media{
		ID:         n.ID,
		Title:      n.Title.best(),
		Popularity: n.Popularity,
		Year:       n.SeasonYear,
		Season:     store.Season(n.Season),
		Genres:     n.Genres,
	}
	for _, t := range n.Tags {
		if t.Name != "" {
			m.Tags = append(m.Tags, t.Name)
		}
	}
	return m
}

type entryNode struct {
	ID      int    `json:"id"`
	MediaID int    `json:"mediaId"`
	Status  Status `json:"status"`
	Media   struct {
		Title title `json:"title"`
	} `json:"media"`
}

func (n entryNode) toEntry() Entry {
	return Entry{ID: n.ID, MediaID: n.MediaID, Title: n.Media.Title.best(), Status: n.Status}
}

type pageInfo struct {
	HasNextPage bool `json:"hasNextPage"`
}

// FetchUserList returns every anime on the user's list. user is a user name
// or, when numeric, a user id. Entries carry their ListEntryID.
func (c *Client) FetchUserList(ctx context.Context, user string) ([]store.Media, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("anilist: user required")
	}
	vars := map[string]any{"perPage": perPage}
	if id, err := strconv.Atoi(user); err == nil {
		vars["userId"] = id
	} else {
		vars["userName"] = user
	}

	var out []store.Media
	for page := 1; page <= maxPages; page++ {
		vars["page"] = page
		resp, err := c.Execute(ctx, Request{Query: queryUserList, Variables: vars}, c.Token)
		if err != nil {
			return nil, fmt.Errorf("fetch list of %s: %w", user, err)
		}
		var data struct {
			Page struct {
				PageInfo  pageInfo `json:"pageInfo"`
				MediaList []struct {
					ID     int       `json:"id"`
					Status string    `json:"status"`
					Media  mediaNode `json:"media"`
				} `json:"mediaList"`
			} `json:"Page"`
		}
		if err := resp.Decode(&data); err != nil {
			return nil, err
		}
		for _, e := range data.Page.MediaList {
			m := e.Media.toMedia()
			id := e.ID
			m.ListEntryID = &id
			m.ListStatus = e.Status
			out = append(out, m)
		}
		c.Log.Debug("anilist: list page", zap.String("user", user), zap.Int("page", page), zap.Int("total", len(out)))
		if !data.Page.PageInfo.HasNextPage {
			break
		}
	}
	c.Log.Info("fetched user list", zap.String("user", user), zap.Int("entries", len(out)))
	return out, nil
}

// FetchCatalog pages through every anime known to AniList ordered by id.
func (c *Client) FetchCatalog(ctx context.Context) ([]store.Media, error) {
	var out []store.Media
	for page := 1; page <= maxPages; page++ {
		resp, err := c.Execute(ctx, Request{
			Query:     queryCatalog,
			Variables: map[string]any{"page": page, "perPage": perPage},
		}, c.Token)
		if err != nil {
			return nil, fmt.Errorf("fetch catalog page %d: %w", page, err)
		}
		var data struct {
			Page struct {
				PageInfo pageInfo    `json:"pageInfo"`
				Media    []mediaNode `json:"media"`
			} `json:"Page"`
		}
		if err := resp.Decode(&data); err != nil {
			return nil, err
		}
		for _, n := range data.Page.Media {
			out = append(out, n.toMedia())
		}
		if page%20 == 0 {
			c.Log.Info("catalog refresh progress", zap.Int("page", page), zap.Int("entries", len(out)))
		}
		if !data.Page.PageInfo.HasNextPage {
			break
		}
	}
	return out, nil
}

// Viewer returns the user the token belongs to.
func (c *Client) Viewer(ctx context.Context) (User, error) {
	resp, err := c.Execute(ctx, Request{Query: queryViewer}, c.Token)
	if err != nil {
		return User{}, fmt.Errorf("viewer: %w", err)
	}
	var data struct {
		Viewer User `json:"Viewer"`
	}
	if err := resp.Decode(&data); err != nil {
		return User{}, err
	}
	return data.Viewer, nil
}

// SaveEntry adds mediaID to the viewer's list, or sets its status if it is
// already there.
func (c *Client) SaveEntry(ctx context.Context, mediaID int, status Status) (Entry, error) {
	resp, err := c.Execute(ctx, Request{
		Query:     mutationSaveEntry,
		Variables: map[string]any{"mediaId": mediaID, "status": status},
	}, c.Token)
	if err != nil {
		return Entry{}, fmt.Errorf("save media %d: %w", mediaID, err)
	}
	var data struct {
		SaveMediaListEntry entryNode `json:"SaveMediaListEntry"`
	}
	if err := resp.Decode(&data); err != nil {
		return Entry{}, err
	}
	return data.SaveMediaListEntry.toEntry(), nil
}

// UpdateEntries sets status on existing list entries in one mutation.
func (c *Client) UpdateEntries(ctx context.Context, entryIDs []int, status Status) ([]Entry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	resp, err := c.Execute(ctx, Request{
		Query:     mutationUpdateEntries,
		Variables: map[string]any{"ids": entryIDs, "status": status},
	}, c.Token)
	if err != nil {
		return nil, fmt.Errorf("update %d entries: %w", len(entryIDs), err)
	}
	var data struct {
		UpdateMediaListEntries []entryNode `json:"UpdateMediaListEntries"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(data.UpdateMediaListEntries))
	for _, n := range data.UpdateMediaListEntries {
		out = append(out, n.toEntry())
	}
	return out, nil
}

func (c *Client) DeleteEntry(ctx context.Context, entryID int) (bool, error) {
	resp, err := c.Execute(ctx, Request{
		Query:     mutationDeleteEntry,
		Variables: map[string]any{"id": entryID},
	}, c.Token)
	if err != nil {
		return false, fmt.Errorf("delete entry %d: %w", entryID, err)
	}
	var data struct {
		DeleteMediaListEntry struct {
			Deleted bool `json:"deleted"`
		} `json:"DeleteMediaListEntry"`
	}
	if err := resp.Decode(&data); err != nil {
		return false, err
	}
	return data.DeleteMediaListEntry.Deleted, nil
}
