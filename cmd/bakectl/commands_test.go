package main

import (
	"strings"
	"testing"
	"time"

	"github.com/breadml/bakectl/internal/journal"
)

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "hello")
	if strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	result = colorize(colorGreen, "hello")
	if !strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestResolveRun_Prefix(t *testing.T) {
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer store.Close()

	runs := []journal.Run{
		{ID: "aaaa1111-0000-0000-0000-000000000000", Repo: "r", Bake: "b", StartedAt: time.Now().UTC()},
		{ID: "aaaa2222-0000-0000-0000-000000000000", Repo: "r", Bake: "b", StartedAt: time.Now().UTC()},
		{ID: "bbbb1111-0000-0000-0000-000000000000", Repo: "r", Bake: "b", StartedAt: time.Now().UTC()},
	}
	for _, r := range runs {
		if err := store.CreateRun(r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	got, err := resolveRun(store, "bbbb")
	if err != nil {
		t.Fatalf("resolveRun: %v", err)
	}
	if got.ID != runs[2].ID {
		t.Errorf("expected %s, got %s", runs[2].ID, got.ID)
	}

	if _, err := resolveRun(store, "aaaa"); err == nil {
		t.Error("expected ambiguous prefix error")
	}

	if _, err := resolveRun(store, "cccc"); err == nil {
		t.Error("expected not-found error")
	}

	// Full IDs resolve directly.
	got, err = resolveRun(store, runs[0].ID)
	if err != nil {
		t.Fatalf("resolveRun full ID: %v", err)
	}
	if got.ID != runs[0].ID {
		t.Errorf("expected %s, got %s", runs[0].ID, got.ID)
	}
}

func TestShortID(t *testing.T) {
	cases := map[string]string{
		"aaaa1111-0000-0000-0000-000000000000": "aaaa1111",
		"12345678": "12345678",
		"short":    "short",
		"":         "",
	}
	for id, want := range cases {
		if got := shortID(id); got != want {
			t.Errorf("shortID(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestTruncateSample(t *testing.T) {
	short := "a short rollout line"
	if got := truncateSample(short); got != short {
		t.Errorf("short line should pass through, got %q", got)
	}

	long := strings.Repeat("x", sampleLineMax+50)
	got := truncateSample(long)
	if len(got) != sampleLineMax+3 {
		t.Errorf("expected %d chars, got %d", sampleLineMax+3, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got[len(got)-10:])
	}
}

func TestRunStatusLabel(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	cases := map[string]string{
		journal.RunCompleted: journal.RunCompleted,
		journal.RunFailed:    journal.RunFailed,
		journal.RunRunning:   journal.RunRunning,
	}
	for status, want := range cases {
		if got := runStatusLabel(status); got != want {
			t.Errorf("runStatusLabel(%s) = %q, want %q", status, got, want)
		}
	}
}
