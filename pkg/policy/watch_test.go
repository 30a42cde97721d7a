package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherReportsPolicyChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(zerolog.Nop(), []string{dir, filepath.Join(dir, "missing")}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string) { changed <- path })
	}()

	// Non-policy files are ignored.
	writePolicyFile(t, filepath.Join(dir, "notes.txt"), "hello")
	target := filepath.Join(dir, "stage_size.rego")
	writePolicyFile(t, target, maxStagePolicy)

	select {
	case got := <-changed:
		if got != target {
			t.Errorf("changed path = %s, want %s", got, target)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatchedFile(t *testing.T) {
	tests := map[string]bool{
		"policies/a.rego":       true,
		"policies/b.json":       true,
		"rules.cue":             true,
		"policies/readme.md":    false,
		"policies/a.rego.swp":   false,
		"policies/bundle.json~": false,
	}
	for name, want := range tests {
		if got := watchedFile(name); got != want {
			t.Errorf("watchedFile(%q) = %v, want %v", name, got, want)
		}
	}
}
