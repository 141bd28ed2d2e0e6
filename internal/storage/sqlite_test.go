package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"toot2mail/internal/dedup"
	"toot2mail/internal/model"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSourceRegistration(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{Kind: model.KindAccount, Name: "someone", Instance: "mastodon.example"}

	known, err := s.IsKnownSource(ctx, src.Key())
	if err != nil {
		t.Fatalf("is known: %v", err)
	}
	if known {
		t.Error("fresh source reported as known")
	}

	if err := s.RegisterSource(ctx, src); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Registration is idempotent.
	if err := s.RegisterSource(ctx, src); err != nil {
		t.Fatalf("register again: %v", err)
	}

	known, err = s.IsKnownSource(ctx, src.Key())
	if err != nil {
		t.Fatalf("is known: %v", err)
	}
	if !known {
		t.Error("registered source not reported as known")
	}

	// A different source on the same instance is independent.
	other := model.Source{Kind: model.KindHashtag, Name: "golang", Instance: "mastodon.example"}
	known, err = s.IsKnownSource(ctx, other.Key())
	if err != nil {
		t.Fatalf("is known: %v", err)
	}
	if known {
		t.Error("unrelated source reported as known")
	}
}

func TestMarkAndLoadSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	key := "someone@mastodon.example"
	uris := []string{
		"https://mastodon.example/users/someone/statuses/1",
		"https://mastodon.example/users/someone/statuses/2",
	}
	for _, uri := range uris {
		if err := s.MarkSeen(ctx, key, uri); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	}
	// Marking the same identifier twice is idempotent.
	if err := s.MarkSeen(ctx, key, uris[0]); err != nil {
		t.Fatalf("mark seen again: %v", err)
	}

	seen, err := s.LoadSeen(ctx, key)
	if err != nil {
		t.Fatalf("load seen: %v", err)
	}
	want := dedup.SeenSet{uris[0]: {}, uris[1]: {}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("seen set mismatch (-want +got):\n%s", diff)
	}

	// Seen sets are keyed per source.
	other, err := s.LoadSeen(ctx, "other@mastodon.example")
	if err != nil {
		t.Fatalf("load seen: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("foreign seen set not empty: %v", other)
	}
}

func TestPruneSeen(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	key := "someone@mastodon.example"
	old := time.Now().UTC().Add(-48 * time.Hour).Format(timeLayout)
	fresh := time.Now().UTC().Format(timeLayout)

	insert := func(uri, seenAt string) {
		t.Helper()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO seen_statuses (source_key, status_uri, seen_at) VALUES (?, ?, ?)`,
			key, uri, seenAt,
		); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	insert("https://a.example/old-1", old)
	insert("https://a.example/old-2", old)
	insert("https://a.example/old-3", old)
	insert("https://a.example/new-1", fresh)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	removed, err := s.PruneSeen(ctx, key, cutoff, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// Three entries are older than the cutoff, but the retention floor of
	// two most recent rows protects one of them.
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	seen, err := s.LoadSeen(ctx, key)
	if err != nil {
		t.Fatalf("load seen: %v", err)
	}
	if len(seen) != 2 {
		t.Errorf("remaining = %d, want 2", len(seen))
	}
	if _, ok := seen["https://a.example/new-1"]; !ok {
		t.Error("recent entry was pruned")
	}
}

func TestPruneSeenKeepsEverythingInsideRetention(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	key := "someone@mastodon.example"
	for _, uri := range []string{"https://a.example/1", "https://a.example/2"} {
		if err := s.MarkSeen(ctx, key, uri); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	}

	removed, err := s.PruneSeen(ctx, key, time.Now().UTC().Add(-24*time.Hour), 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
