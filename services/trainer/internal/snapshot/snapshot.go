// Package snapshot persists the full catalog that backs the ALL set and the
// popularity percentiles.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/example/amq-trainer/services/trainer/internal/store"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("catalog snapshot not found")

type Store interface {
	Load(ctx context.Context) ([]store.Media, error)
	Save(ctx context.Context, entries []store.Media) error
}

// JSONFile keeps the snapshot as one flat JSON array of media objects.
type JSONFile struct {
	Path string
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

func (f *JSONFile) Load(_ context.Context) ([]store.Media, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", f.Path, ErrNoSnapshot)
		}
		return nil, err
	}
	var out []store.Media
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return out, nil
}

// Save rewrites the file wholesale. The data goes to a temp file in the same
// directory first so a failed write never truncates the old snapshot.
func (f *JSONFile) Save(_ context.Context, entries []store.Media) error {
	if entries == nil {
		entries = []store.Media{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
