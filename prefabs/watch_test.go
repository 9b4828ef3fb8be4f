package prefabs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/milk9111/sfmmaps/internal/testutil"
)

func TestIsWatched(t *testing.T) {
	cases := map[string]bool{
		"levels/a.xml":  true,
		"a.XML":         true,
		"door.yaml":     true,
		"door.yml":      true,
		"spec.json":     true,
		"spec.jsonc":    true,
		"s/row.tengo":   true,
		"notes.txt":     false,
		"old.lua":       false,
		"levels/a.xml~": false,
	}
	for path, want := range cases {
		if got := IsWatched(path); got != want {
			t.Errorf("IsWatched(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcherDebounce(200*time.Millisecond, dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	testutil.WriteFile(t, dir, "notes.txt", "ignored")
	path := testutil.WriteFile(t, dir, "forest.xml", "<sfm_maps>")

	// Nothing is reported while the file is still being written.
	testutil.RequireNoReceive(t, w.Events, 100*time.Millisecond, "event before writes settled")
	testutil.WriteFile(t, dir, "forest.xml", "<sfm_maps><maps_head>")
	testutil.WriteFile(t, dir, "forest.xml", "<sfm_maps></sfm_maps>")

	got := testutil.RequireReceive(t, w.Events, 5*time.Second, "waiting for %s", path)
	if filepath.Base(got) != "forest.xml" {
		t.Fatalf("unexpected event path %q", got)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("reading %s: %v", got, err)
	}
	if string(data) != "<sfm_maps></sfm_maps>" {
		t.Fatalf("event delivered before final write: %q", data)
	}
	testutil.RequireNoReceive(t, w.Events, 400*time.Millisecond, "burst reported more than once")

	testutil.WriteFile(t, dir, "door.yaml", "type: 1\n")
	got = testutil.RequireReceive(t, w.Events, 5*time.Second, "waiting for door.yaml")
	if filepath.Base(got) != "door.yaml" {
		t.Fatalf("unexpected event path %q", got)
	}
}

func TestSettled(t *testing.T) {
	now := time.Now()
	pending := map[string]time.Time{
		"b.xml":  now.Add(-time.Millisecond),
		"a.xml":  now,
		"c.yaml": now.Add(time.Second),
	}
	got := settled(pending, now)
	if len(got) != 2 || got[0] != "a.xml" || got[1] != "b.xml" {
		t.Fatalf("settled = %v", got)
	}
	if len(settled(map[string]time.Time{}, now)) != 0 {
		t.Fatal("expected nothing settled")
	}
}

func TestWatcherCloseClosesChannels(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-w.Events; ok {
		t.Fatal("expected Events closed")
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
