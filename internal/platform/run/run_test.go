package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type detailedErr struct{ lines []string }

func (e *detailedErr) Error() string     { return "request failed" }
func (e *detailedErr) Details() []string { return e.lines }

func TestFormat_IndentsExtraLines(t *testing.T) {
	got := Format("Error executing query:", "first\nsecond")
	want := "Error executing query:\n    first\n    second"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFormat_WrapsLongLines(t *testing.T) {
	long := strings.Repeat("word ", 50)
	got := Format("msg", long)
	for i, l := range strings.Split(got, "\n") {
		if i == 0 {
			continue
		}
		if len(strings.TrimPrefix(l, "    ")) > wrapWidth {
			t.Fatalf("line %d longer than %d: %q", i, wrapWidth, l)
		}
	}
}

func TestDiagnostic_CollectsWrappedDetails(t *testing.T) {
	err := fmt.Errorf("push: %w", &detailedErr{lines: []string{"status=500", "body=oops"}})
	got := Diagnostic(err)
	want := "push: request failed\n    status=500\n    body=oops"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMain_ExitCodes(t *testing.T) {
	var buf bytes.Buffer
	r := &Runner{Logger: zap.NewNop(), Stderr: &buf}

	if code := r.Main(func(context.Context) error { return nil }); code != 0 {
		t.Fatalf("expected 0, got %d", code)
	}
	if code := r.Main(func(context.Context) error { return errors.New("set missing") }); code != 1 {
		t.Fatalf("expected 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "set missing") {
		t.Fatalf("expected diagnostic on stderr, got %q", buf.String())
	}
}
