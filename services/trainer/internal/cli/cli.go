// Package cli maps trainer verbs to typed argument structs.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/jobs"
)

var ErrUsage = errors.New("usage error")

// UsageError is a command line mistake. Its details carry the synopsis of
// the command involved.
type UsageError struct {
	Msg   string
	Usage string
}

func (e *UsageError) Error() string { return e.Msg }

func (e *UsageError) Details() []string {
	if e.Usage == "" {
		return nil
	}
	return []string{"usage: " + e.Usage}
}

func (e *UsageError) Unwrap() error { return ErrUsage }

// Jobs is the set of operations the commands drive.
type Jobs interface {
	Fetch(ctx context.Context, user, set string) error
	Create(set string, ids []int) error
	Union(ctx context.Context, set string, sources []string) error
	Sample(ctx context.Context, a jobs.SampleArgs) error
	Push(ctx context.Context, set string, status anilist.Status) error
	Delete(ctx context.Context, set string) error
	Replace(ctx context.Context, set string, status, demote anilist.Status) error
	Train(ctx context.Context, a jobs.TrainArgs) error
	Refresh(ctx context.Context) error
	Print(ctx context.Context, set string) error
	List(ctx context.Context) error
}

var _ Jobs = (*jobs.Trainer)(nil)

// Invocation is a parsed command ready to run.
type Invocation interface {
	Run(ctx context.Context, j Jobs) error
}

type Command struct {
	Name     string
	Synopsis string
	Summary  string
	// Catalog is true when the command reads the catalog snapshot.
	Catalog bool
	parse   func(fs *flag.FlagSet, args []string) (Invocation, error)
}

func (c Command) usage() string {
	return "trainer " + c.Name + " " + c.Synopsis
}

var registry = []Command{
	{
		Name: "fetch", Synopsis: "<user> <set>", Summary: "fetch a user's anime list into a set",
		parse: parseFetch,
	},
	{
		Name: "create", Synopsis: "<set> <media-id>...", Summary: "create a set from media ids",
		Catalog: true, parse: parseCreate,
	},
	{
		Name: "union", Synopsis: "<set> <source>...", Summary: "concatenate sets, first occurrence wins",
		Catalog: true, parse: parseUnion,
	},
	{
		Name: "sample", Synopsis: "<source> <set> [--size N] [--offset N] [--seed S] [filters] [--push STATUS]",
		Summary: "draw a reproducible filtered sample into a new set",
		Catalog: true, parse: parseSample,
	},
	{
		Name: "push", Synopsis: "<set> [--status STATUS]", Summary: "add or update the set's media on your list",
		Catalog: true, parse: parsePush,
	},
	{
		Name: "delete", Synopsis: "<set>", Summary: "delete the set's media from your list",
		Catalog: true, parse: parseDelete,
	},
	{
		Name: "replace", Synopsis: "<set> [--status STATUS] [--demote STATUS]",
		Summary: "make your list hold exactly the set",
		Catalog: true, parse: parseReplace,
	},
	{
		Name: "train", Synopsis: "--source USER[,USER] [--user USER] [--count N] [--seed S]",
		Summary: "demote your list to PLANNING and complete a sample of the source lists",
		Catalog: true, parse: parseTrain,
	},
	{
		Name: "refresh", Synopsis: "", Summary: "download the catalog and rewrite the snapshot",
		parse: parseRefresh,
	},
	{
		Name: "print", Synopsis: "<set>", Summary: "print a set as a table",
		Catalog: true, parse: parsePrint,
	},
	{
		Name: "sets", Synopsis: "", Summary: "list the sets built so far in this invocation",
		parse: parseSets,
	},
}

// Separator chains commands in one invocation. Sets built by a command are
// visible to the commands after it.
const Separator = "then"

func Lookup(name string) (Command, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Parse resolves argv (without the program name) to a command and its args.
func Parse(argv []string) (Command, Invocation, error) {
	if len(argv) == 0 {
		return Command{}, nil, &UsageError{Msg: "missing command", Usage: "trainer <command> [args]"}
	}
	cmd, ok := Lookup(argv[0])
	if !ok {
		return Command{}, nil, &UsageError{Msg: fmt.Sprintf("unknown command %q", argv[0]), Usage: "trainer <command> [args]"}
	}
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	inv, err := cmd.parse(fs, argv[1:])
	if err != nil {
		var ue *UsageError
		if errors.As(err, &ue) {
			if ue.Usage == "" {
				ue.Usage = cmd.usage()
			}
			return cmd, nil, ue
		}
		return cmd, nil, &UsageError{Msg: err.Error(), Usage: cmd.usage()}
	}
	return cmd, inv, nil
}

// Step is one parsed command of a chain.
type Step struct {
	Command    Command
	Invocation Invocation
}

// ParseChain splits argv on Separator and parses each command.
func ParseChain(argv []string) ([]Step, error) {
	var steps []Step
	start := 0
	for i := 0; i <= len(argv); i++ {
		if i < len(argv) && argv[i] != Separator {
			continue
		}
		if i == start && len(argv) > 0 {
			return nil, &UsageError{Msg: fmt.Sprintf("empty command around %q", Separator), Usage: chainUsage}
		}
		cmd, inv, err := Parse(argv[start:i])
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Command: cmd, Invocation: inv})
		start = i + 1
	}
	return steps, nil
}

// NeedsCatalog reports whether any step reads the catalog snapshot.
func NeedsCatalog(steps []Step) bool {
	for _, s := range steps {
		if s.Command.Catalog {
			return true
		}
	}
	return false
}

// Names returns the command names of a chain joined by Separator.
func Names(steps []Step) string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Command.Name)
	}
	return strings.Join(names, " "+Separator+" ")
}

// RunChain runs the steps in order and stops at the first failure.
func RunChain(ctx context.Context, steps []Step, j Jobs) error {
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Invocation.Run(ctx, j); err != nil {
			if len(steps) == 1 {
				return err
			}
			return fmt.Errorf("step %d (%s): %w", i+1, s.Command.Name, err)
		}
	}
	return nil
}

const chainUsage = "trainer <command> [args] [then <command> [args]]..."

// Usage lists every command.
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: "+chainUsage)
	fmt.Fprintln(w)
	for _, c := range registry {
		fmt.Fprintf(w, "  %-8s %s\n", c.Name, c.Summary)
		fmt.Fprintf(w, "           %s\n", strings.TrimSpace(c.usage()))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Commands joined by %q run in order and share their sets, e.g.\n", Separator)
	fmt.Fprintln(w, "  trainer create picks 1 2 3 then push picks --status completed")
}

// parseArgs parses flags that may appear anywhere among the positional
// arguments and returns the positionals in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return pos, nil
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
}

func exactly(pos []string, n int, names ...string) error {
	if len(pos) < n {
		return &UsageError{Msg: "missing " + strings.Join(names[len(pos):], ", ")}
	}
	if len(pos) > n {
		return &UsageError{Msg: fmt.Sprintf("unexpected argument %q", pos[n])}
	}
	return nil
}
