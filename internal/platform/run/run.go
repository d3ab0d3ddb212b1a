package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const wrapWidth = 100

// Detailer is implemented by errors that carry extra diagnostic lines.
type Detailer interface {
	Details() []string
}

type Runner struct {
	Logger *zap.Logger
	Stderr io.Writer
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, Stderr: os.Stderr}
}

// Main runs start to completion and maps its result to a process exit code.
// Any error is fatal: it is reported as a multi-line diagnostic and yields 1.
func (r *Runner) Main(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := start(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		r.Logger.Info("interrupted")
		return 130
	}
	r.Logger.Debug("command failed", zap.Error(err))
	_, _ = fmt.Fprintln(r.Stderr, Diagnostic(err))
	return 1
}

// Diagnostic renders err as its message followed by indented, wrapped detail
// lines collected from every Detailer in the chain.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var extra []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if d, ok := e.(Detailer); ok {
			extra = append(extra, d.Details()...)
		}
	}
	return Format(err.Error(), extra...)
}

// Format joins msg and the wrapped extra lines, each continuation indented
// by four spaces.
func Format(msg string, extra ...string) string {
	lines := []string{msg}
	for _, s := range extra {
		for _, l := range strings.Split(s, "\n") {
			lines = append(lines, wrap(l, wrapWidth)...)
		}
	}
	return strings.Join(lines, "\n    ")
}

func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var out []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > width {
			out = append(out, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(out, cur)
}

func Exit(code int) {
	os.Exit(code)
}
