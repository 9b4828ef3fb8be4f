package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/milk9111/sfmmaps/catalog"
	"github.com/milk9111/sfmmaps/internal/testutil"
	"github.com/milk9111/sfmmaps/levels"
)

func TestHandleIndexesAndRemoves(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	h := &handler{cat: cat}

	dir := t.TempDir()
	data, err := levels.LevelsFS.ReadFile("forest.xml")
	if err != nil {
		t.Fatal(err)
	}
	path := testutil.WriteFile(t, dir, "forest.xml", string(data))
	broken := testutil.WriteFile(t, dir, "broken.xml", "<sfm_maps>")

	h.handle(ctx, path)
	h.handle(ctx, broken)
	h.handle(ctx, filepath.Join(dir, "door.yaml"))

	infos, err := cat.Levels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != indexName(path) {
		t.Fatalf("unexpected catalog contents %+v", infos)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	h.handle(ctx, path)
	infos, err = cat.Levels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Fatalf("removed level still indexed: %+v", infos)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Setenv("SFMMAPS_CONFIG", "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"--debounce", "10ms", t.TempDir()}) }()
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for run to stop"); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunBadArgs(t *testing.T) {
	t.Setenv("SFMMAPS_CONFIG", "")
	if err := run(context.Background(), []string{"--nope"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
	if err := run(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
