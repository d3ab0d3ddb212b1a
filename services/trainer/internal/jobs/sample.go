package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/sampling"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

type SampleArgs struct {
	Source  string
	Dest    string
	Request sampling.Request
	// Push, when set, pushes the new set to the operator's list.
	Push anilist.Status
}

// Sample draws from Source into a new set Dest.
func (t *Trainer) Sample(ctx context.Context, a SampleArgs) error {
	if t.Sets.Has(a.Dest) {
		return fmt.Errorf("create %q: %w", a.Dest, store.ErrDuplicateSet)
	}
	src, err := t.resolve(ctx, a.Source)
	if err != nil {
		return err
	}
	got := sampling.New(t.Sets.Catalog()).Sample(src, a.Request)
	t.log().Info("sampled",
		zap.String("source", a.Source), zap.String("dest", a.Dest),
		zap.Int("requested", a.Request.Size), zap.Int("got", len(got)),
		zap.Stringer("filter", a.Request.Filter))
	if len(got) < a.Request.Size {
		t.log().Warn("fewer matches than requested", zap.Int("requested", a.Request.Size), zap.Int("got", len(got)))
	}
	if err := t.Sets.Create(a.Dest, got); err != nil {
		return err
	}
	if a.Push != "" {
		return t.Push(ctx, a.Dest, a.Push)
	}
	return nil
}

type TrainArgs struct {
	// User defaults to the operator.
	User    string
	Sources []string
	Count   int
	Seed    *uint64
}

// Train rebuilds a training list: the whole list of User is set to PLANNING,
// then Count media drawn from the source users' lists are set to COMPLETED.
func (t *Trainer) Train(ctx context.Context, a TrainArgs) error {
	if len(a.Sources) == 0 {
		return errors.New("at least one source user is required")
	}
	info, err := t.authorize()
	if err != nil {
		return err
	}
	user := strings.TrimSpace(a.User)
	if user == "" {
		if user, err = t.operator(ctx, info); err != nil {
			return err
		}
	}
	list, err := t.AniList.FetchUserList(ctx, user)
	if err != nil {
		return err
	}

	var pool []store.Media
	for _, src := range a.Sources {
		name := src
		if !strings.HasPrefix(name, UserPrefix) {
			name = UserPrefix + src
		}
		entries, err := t.resolve(ctx, name)
		if err != nil {
			return err
		}
		pool = append(pool, entries...)
	}

	if err := t.addOrUpdate(ctx, list, mediaIDs(list), anilist.StatusPlanning); err != nil {
		return err
	}

	picked := sampling.New(t.Sets.Catalog()).Sample(pool, sampling.Request{Size: a.Count, Seed: a.Seed})
	t.log().Info("training set drawn", zap.String("user", user), zap.Int("pool", len(pool)), zap.Int("picked", len(picked)))
	return t.addOrUpdate(ctx, list, mediaIDs(picked), anilist.StatusCompleted)
}

// Print writes set as a tab-aligned table.
func (t *Trainer) Print(ctx context.Context, set string) error {
	entries, err := t.resolve(ctx, set)
	if err != nil {
		return err
	}
	cat := t.Sets.Catalog()
	w := tabwriter.NewWriter(t.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPOPULARITY\tPCT\tYEAR\tSEASON\tSTATUS")
	for _, m := range entries {
		pct := "-"
		if p, ok := cat.Percentile(m.ID); ok {
			pct = strconv.FormatFloat(p, 'f', 1, 64)
		}
		year := "-"
		if m.Year != nil {
			year = strconv.Itoa(*m.Year)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			m.ID, m.Title, m.Popularity, pct, year, dash(string(m.Season)), dash(m.ListStatus))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
