package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shikibetsu/internal/models"
)

func openBackends(t *testing.T) map[string]Dataset {
	t.Helper()
	dir := t.TempDir()
	out := make(map[string]Dataset)
	for _, b := range []string{"sqlite", "bolt"} {
		ds, err := Open(b, filepath.Join(dir, b, "dataset.db"))
		if err != nil {
			t.Fatalf("Open(%s): %v", b, err)
		}
		t.Cleanup(func() { _ = ds.Close() })
		out[b] = ds
	}
	return out
}

func example(text, label string, v ...float32) models.Example {
	return models.Example{Text: text, Label: label, Vector: v}
}

func TestDataset_AppendLoadOrder(t *testing.T) {
	ctx := context.Background()
	for name, ds := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			batch := []models.Example{
				example("Tell me today's weather", "weather", 1, 0),
				example("Tell me good restaurant.", "restaurant", 0, 1),
			}
			if err := ds.Append(ctx, batch); err != nil {
				t.Fatal(err)
			}
			if err := ds.Append(ctx, []models.Example{example("Is it raining?", "weather", 0.6, 0.8)}); err != nil {
				t.Fatal(err)
			}
			got, err := ds.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			wantOrder := []string{"Tell me today's weather", "Tell me good restaurant.", "Is it raining?"}
			if len(got) != len(wantOrder) {
				t.Fatalf("loaded %d examples, want %d", len(got), len(wantOrder))
			}
			for i, w := range wantOrder {
				if got[i].Text != w {
					t.Errorf("position %d: got %q, want %q", i, got[i].Text, w)
				}
			}
			if got[2].Vector[0] != 0.6 || got[2].Vector[1] != 0.8 {
				t.Errorf("vector round trip: %v", got[2].Vector)
			}
			if n, _ := ds.Count(ctx); n != 3 {
				t.Errorf("Count=%d, want 3", n)
			}
		})
	}
}

func TestDataset_AppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, ds := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if err := ds.Append(ctx, []models.Example{example("hi", "greet", 1)}); err != nil {
				t.Fatal(err)
			}
			err := ds.Append(ctx, []models.Example{
				example("hello", "greet", 1),
				example("hi", "greet", 1),
			})
			if !errors.Is(err, models.ErrDuplicateExample) {
				t.Fatalf("expected ErrDuplicateExample, got %v", err)
			}
			if n, _ := ds.Count(ctx); n != 1 {
				t.Errorf("failed batch left %d rows, want 1", n)
			}
		})
	}
}

func TestDataset_DeleteClear(t *testing.T) {
	ctx := context.Background()
	for name, ds := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_ = ds.Append(ctx, []models.Example{example("a", "x", 1), example("b", "x", 1), example("c", "y", 1)})
			if err := ds.Delete(ctx, models.Key{Text: "b", Label: "x"}); err != nil {
				t.Fatal(err)
			}
			if err := ds.Delete(ctx, models.Key{Text: "b", Label: "x"}); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			got, _ := ds.Load(ctx)
			if len(got) != 2 || got[0].Text != "a" || got[1].Text != "c" {
				t.Errorf("after delete: %+v", got)
			}
			// The deleted key can be added again.
			if err := ds.Append(ctx, []models.Example{example("b", "x", 1)}); err != nil {
				t.Fatal(err)
			}
			if err := ds.Clear(ctx); err != nil {
				t.Fatal(err)
			}
			if n, _ := ds.Count(ctx); n != 0 {
				t.Errorf("Count after Clear=%d", n)
			}
		})
	}
}

func TestDataset_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, b := range []string{"sqlite", "bolt"} {
		path := filepath.Join(dir, b+".db")
		ds, err := Open(b, path)
		if err != nil {
			t.Fatal(err)
		}
		_ = ds.Append(ctx, []models.Example{example("a", "x", 1, 2, 3)})
		if ds.Path() != path {
			t.Errorf("Path=%s", ds.Path())
		}
		_ = ds.Close()

		ds, err = Open(b, path)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := ds.Load(ctx)
		if len(got) != 1 || len(got[0].Vector) != 3 {
			t.Errorf("%s reopen: %+v", b, got)
		}
		_ = ds.Close()
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("postgres", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
}
