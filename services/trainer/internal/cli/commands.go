package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/filter"
	"github.com/example/amq-trainer/services/trainer/internal/jobs"
	"github.com/example/amq-trainer/services/trainer/internal/sampling"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

type FetchArgs struct {
	User string
	Set  string
}

func (a FetchArgs) Run(ctx context.Context, j Jobs) error { return j.Fetch(ctx, a.User, a.Set) }

func parseFetch(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 2, "user", "set"); err != nil {
		return nil, err
	}
	return FetchArgs{User: pos[0], Set: pos[1]}, nil
}

type CreateArgs struct {
	Set string
	IDs []int
}

func (a CreateArgs) Run(_ context.Context, j Jobs) error { return j.Create(a.Set, a.IDs) }

func parseCreate(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if len(pos) < 2 {
		return nil, &UsageError{Msg: "create needs a set name and at least one media id"}
	}
	ids, err := parseIDs(pos[1:])
	if err != nil {
		return nil, err
	}
	return CreateArgs{Set: pos[0], IDs: ids}, nil
}

type UnionArgs struct {
	Set     string
	Sources []string
}

func (a UnionArgs) Run(ctx context.Context, j Jobs) error { return j.Union(ctx, a.Set, a.Sources) }

func parseUnion(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if len(pos) < 2 {
		return nil, &UsageError{Msg: "union needs a set name and at least one source set"}
	}
	return UnionArgs{Set: pos[0], Sources: pos[1:]}, nil
}

type SampleArgs struct {
	jobs.SampleArgs
}

func (a SampleArgs) Run(ctx context.Context, j Jobs) error { return j.Sample(ctx, a.SampleArgs) }

func parseSample(fs *flag.FlagSet, args []string) (Invocation, error) {
	size := fs.Int("size", 10, "number of entries to draw")
	offset := fs.Int("offset", 0, "matches to skip in the seeded order")
	seed := seedFlag(fs)
	push := statusFlag(fs, "push", "")

	var o filter.Options
	intFlag(fs, "min-year", &o.MinYear)
	intFlag(fs, "max-year", &o.MaxYear)
	seasonFlag(fs, "min-season", &o.MinSeason)
	seasonFlag(fs, "max-season", &o.MaxSeason)
	intFlag(fs, "min-popularity", &o.MinPopularity)
	intFlag(fs, "max-popularity", &o.MaxPopularity)
	floatFlag(fs, "min-popularity-percent", &o.MinPopularityPercent)
	floatFlag(fs, "max-popularity-percent", &o.MaxPopularityPercent)
	listFlag(fs, "genres", &o.Genres)
	listFlag(fs, "tags", &o.Tags)

	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 2, "source", "set"); err != nil {
		return nil, err
	}
	if *size < 0 || *offset < 0 {
		return nil, &UsageError{Msg: "--size and --offset must not be negative"}
	}
	return SampleArgs{jobs.SampleArgs{
		Source: pos[0],
		Dest:   pos[1],
		Request: sampling.Request{
			Size:   *size,
			Offset: *offset,
			Seed:   *seed,
			Filter: filter.Build(o),
		},
		Push: *push,
	}}, nil
}

type PushArgs struct {
	Set    string
	Status anilist.Status
}

func (a PushArgs) Run(ctx context.Context, j Jobs) error { return j.Push(ctx, a.Set, a.Status) }

func parsePush(fs *flag.FlagSet, args []string) (Invocation, error) {
	status := statusFlag(fs, "status", anilist.StatusPlanning)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 1, "set"); err != nil {
		return nil, err
	}
	return PushArgs{Set: pos[0], Status: *status}, nil
}

type DeleteArgs struct {
	Set string
}

func (a DeleteArgs) Run(ctx context.Context, j Jobs) error { return j.Delete(ctx, a.Set) }

func parseDelete(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 1, "set"); err != nil {
		return nil, err
	}
	return DeleteArgs{Set: pos[0]}, nil
}

type ReplaceArgs struct {
	Set    string
	Status anilist.Status
	// Demote moves entries outside the set to this status instead of
	// deleting them.
	Demote anilist.Status
}

func (a ReplaceArgs) Run(ctx context.Context, j Jobs) error {
	return j.Replace(ctx, a.Set, a.Status, a.Demote)
}

func parseReplace(fs *flag.FlagSet, args []string) (Invocation, error) {
	status := statusFlag(fs, "status", anilist.StatusCompleted)
	demote := statusFlag(fs, "demote", "")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 1, "set"); err != nil {
		return nil, err
	}
	return ReplaceArgs{Set: pos[0], Status: *status, Demote: *demote}, nil
}

type TrainArgs struct {
	jobs.TrainArgs
}

func (a TrainArgs) Run(ctx context.Context, j Jobs) error { return j.Train(ctx, a.TrainArgs) }

func parseTrain(fs *flag.FlagSet, args []string) (Invocation, error) {
	user := fs.String("user", "", "list to rebuild (default: the token's owner)")
	count := fs.Int("count", 10, "number of anime to complete")
	seed := seedFlag(fs)
	var sources []string
	listFlag(fs, "source", &sources)

	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	// Bare arguments are taken as further source users.
	for _, p := range pos {
		sources = append(sources, splitList(p)...)
	}
	if len(sources) == 0 {
		return nil, &UsageError{Msg: "missing --source"}
	}
	if *count < 0 {
		return nil, &UsageError{Msg: "--count must not be negative"}
	}
	return TrainArgs{jobs.TrainArgs{User: *user, Sources: sources, Count: *count, Seed: *seed}}, nil
}

type RefreshArgs struct{}

func (RefreshArgs) Run(ctx context.Context, j Jobs) error { return j.Refresh(ctx) }

func parseRefresh(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 0); err != nil {
		return nil, err
	}
	return RefreshArgs{}, nil
}

type PrintArgs struct {
	Set string
}

func (a PrintArgs) Run(ctx context.Context, j Jobs) error { return j.Print(ctx, a.Set) }

func parsePrint(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if len(pos) == 0 {
		return PrintArgs{Set: store.All}, nil
	}
	if err := exactly(pos, 1, "set"); err != nil {
		return nil, err
	}
	return PrintArgs{Set: pos[0]}, nil
}

type SetsArgs struct{}

func (SetsArgs) Run(ctx context.Context, j Jobs) error { return j.List(ctx) }

func parseSets(fs *flag.FlagSet, args []string) (Invocation, error) {
	pos, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if err := exactly(pos, 0); err != nil {
		return nil, err
	}
	return SetsArgs{}, nil
}

func parseIDs(vals []string) ([]int, error) {
	ids := make([]int, 0, len(vals))
	for _, v := range vals {
		for _, part := range splitList(v) {
			id, err := strconv.Atoi(part)
			if err != nil || id <= 0 {
				return nil, &UsageError{Msg: fmt.Sprintf("invalid media id %q", part)}
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intFlag(fs *flag.FlagSet, name string, dst **int) {
	fs.Func(name, name, func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*dst = &n
		return nil
	})
}

func floatFlag(fs *flag.FlagSet, name string, dst **float64) {
	fs.Func(name, name, func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", v)
		}
		*dst = &f
		return nil
	})
}

func seasonFlag(fs *flag.FlagSet, name string, dst **store.Season) {
	fs.Func(name, name, func(v string) error {
		s, err := store.ParseSeason(v)
		if err != nil {
			return err
		}
		*dst = &s
		return nil
	})
}

// listFlag accepts comma separated values and may be repeated.
func listFlag(fs *flag.FlagSet, name string, dst *[]string) {
	fs.Func(name, name, func(v string) error {
		*dst = append(*dst, splitList(v)...)
		return nil
	})
}

func statusFlag(fs *flag.FlagSet, name string, def anilist.Status) *anilist.Status {
	s := def
	fs.Func(name, "list status", func(v string) error {
		parsed, err := anilist.ParseStatus(v)
		if err != nil {
			return err
		}
		s = parsed
		return nil
	})
	return &s
}

// seedFlag leaves the seed nil unless --seed is given.
func seedFlag(fs *flag.FlagSet) **uint64 {
	var seed *uint64
	fs.Func("seed", "random seed", func(v string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed %q", v)
		}
		seed = &n
		return nil
	})
	return &seed
}
