// Package jobs implements the trainer commands on top of the AniList client,
// the media set registry and the sampler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/example/amq-trainer/internal/platform/auth"
	"github.com/example/amq-trainer/internal/platform/events"
	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/snapshot"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

// UserPrefix marks a set argument that names an AniList user. The user's list
// is fetched into a set of that name the first time it is referenced.
const UserPrefix = "user:"

var (
	ErrTokenExpired = errors.New("access token expired")
	// ErrEmptyReplace is returned when replace would delete every list entry.
	ErrEmptyReplace = errors.New("set is empty; refusing to delete every list entry")
)

type Trainer struct {
	Log      *zap.Logger
	AniList  anilist.Provider
	Sets     *store.Sets
	Snapshot snapshot.Store
	Events   *events.Publisher
	// Token is only inspected locally; the client sends it.
	Token string
	// User is the operator's AniList name or id. When empty it is taken from
	// the token subject, then from the Viewer query.
	User string
	Out  io.Writer
	Now  func() time.Time
}

func (t *Trainer) log() *zap.Logger {
	if t.Log == nil {
		return zap.NewNop()
	}
	return t.Log
}

func (t *Trainer) out() io.Writer {
	if t.Out == nil {
		return os.Stdout
	}
	return t.Out
}

func (t *Trainer) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Fetch stores user's list as set.
func (t *Trainer) Fetch(ctx context.Context, user, set string) error {
	if t.Sets.Has(set) {
		return fmt.Errorf("create %q: %w", set, store.ErrDuplicateSet)
	}
	list, err := t.AniList.FetchUserList(ctx, user)
	if err != nil {
		return err
	}
	return t.Sets.Create(set, list)
}

// Create builds a set from explicit media ids, taking metadata from the
// catalog. Ids the catalog does not know are kept with their id only.
func (t *Trainer) Create(set string, ids []int) error {
	cat := t.Sets.Catalog()
	entries := make([]store.Media, 0, len(ids))
	for _, id := range ids {
		m, ok := cat.Lookup(id)
		if !ok {
			t.log().Warn("media not in catalog snapshot", zap.Int("media_id", id))
			m = store.Media{ID: id}
		}
		entries = append(entries, m)
	}
	return t.Sets.Create(set, entries)
}

// Union concatenates the sources into set. The first occurrence of a media
// id wins.
func (t *Trainer) Union(ctx context.Context, set string, sources []string) error {
	seen := make(map[int]struct{})
	var out []store.Media
	for _, src := range sources {
		entries, err := t.resolve(ctx, src)
		if err != nil {
			return err
		}
		for _, m := range entries {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	return t.Sets.Create(set, out)
}

// Refresh downloads the whole catalog and rewrites the snapshot.
func (t *Trainer) Refresh(ctx context.Context) error {
	if t.Snapshot == nil {
		return errors.New("no snapshot store configured")
	}
	start := t.now()
	entries, err := t.AniList.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	if err := t.Snapshot.Save(ctx, entries); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if !t.Sets.Has(store.All) {
		if err := t.Sets.Attach(store.NewCatalog(entries)); err != nil {
			return err
		}
	}
	t.log().Info("catalog snapshot refreshed",
		zap.Int("entries", len(entries)), zap.Duration("took", t.now().Sub(start)))
	return nil
}

// List writes the bound set names with their sizes.
func (t *Trainer) List(context.Context) error {
	w := tabwriter.NewWriter(t.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SET\tENTRIES")
	for _, name := range t.Sets.Names() {
		entries, err := t.Sets.Load(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", name, len(entries))
	}
	return w.Flush()
}

// resolve loads a set, fetching user:<name> sets and the catalog snapshot
// behind ALL on first use.
func (t *Trainer) resolve(ctx context.Context, name string) ([]store.Media, error) {
	if user, ok := strings.CutPrefix(name, UserPrefix); ok && !t.Sets.Has(name) {
		if err := t.Fetch(ctx, user, name); err != nil {
			return nil, err
		}
	}
	if name == store.All {
		if err := t.attachCatalog(ctx); err != nil {
			return nil, err
		}
	}
	return t.Sets.Load(name)
}

// attachCatalog binds ALL from the snapshot store unless it is bound already.
func (t *Trainer) attachCatalog(ctx context.Context) error {
	if t.Sets.Has(store.All) || t.Snapshot == nil {
		return nil
	}
	entries, err := t.Snapshot.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return fmt.Errorf("load %q: %w; run `trainer refresh` first", store.All, store.ErrSetNotFound)
	}
	if err != nil {
		return fmt.Errorf("load catalog snapshot: %w", err)
	}
	t.log().Debug("catalog loaded on demand", zap.Int("entries", len(entries)))
	return t.Sets.Attach(store.NewCatalog(entries))
}

// authorize checks the token locally before any mutation. A token that is
// not a JWT is passed through; the service has the final word.
func (t *Trainer) authorize() (auth.TokenInfo, error) {
	info, err := auth.Inspect(t.Token)
	if errors.Is(err, auth.ErrNoToken) {
		return info, err
	}
	if err != nil {
		t.log().Debug("access token is not a readable jwt", zap.Error(err))
		return auth.TokenInfo{}, nil
	}
	if info.Expired(t.now()) {
		return info, fmt.Errorf("%w at %s", ErrTokenExpired, info.ExpiresAt.Format(time.RFC3339))
	}
	return info, nil
}

// operator returns the list the mutating commands work on.
func (t *Trainer) operator(ctx context.Context, info auth.TokenInfo) (string, error) {
	if u := strings.TrimSpace(t.User); u != "" {
		return u, nil
	}
	if id, ok := info.UserID(); ok {
		return strconv.Itoa(id), nil
	}
	v, err := t.AniList.Viewer(ctx)
	if err != nil {
		return "", err
	}
	if v.Name != "" {
		return v.Name, nil
	}
	return strconv.Itoa(v.ID), nil
}

// operatorList fetches the operator's list fresh; list entry ids from
// earlier fetches may be stale.
func (t *Trainer) operatorList(ctx context.Context) ([]store.Media, error) {
	info, err := t.authorize()
	if err != nil {
		return nil, err
	}
	user, err := t.operator(ctx, info)
	if err != nil {
		return nil, err
	}
	return t.AniList.FetchUserList(ctx, user)
}
