package history_test

import (
	"context"
	"testing"
	"time"

	"aninamer/internal/history"
	"aninamer/internal/testsupport"
)

func newStore(t *testing.T) *history.Store {
	t.Helper()
	return testsupport.MustOpenHistory(t, testsupport.NewConfig(t))
}

func TestRecordAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := store.Record(ctx, history.Entry{
		Directory:    "/watch/frieren",
		SeriesTitle:  "葬送的芙莉莲",
		TMDBID:       209867,
		Outcome:      history.OutcomeApplied,
		MovesApplied: 13,
		PlanPath:     "/logs/plans/frieren.plan.json",
		RollbackPath: "/logs/plans/frieren.rollback.json",
		Duration:     90 * time.Second,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	if _, err := store.Record(ctx, history.Entry{
		Directory: "/watch/broken",
		Outcome:   history.OutcomeFailed,
		Error:     "mapping rejected",
	}); err != nil {
		t.Fatalf("record second: %v", err)
	}

	entries, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Directory != "/watch/broken" || entries[0].Outcome != history.OutcomeFailed {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	got := entries[1]
	if got.SeriesTitle != "葬送的芙莉莲" || got.TMDBID != 209867 || got.MovesApplied != 13 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Duration != 90*time.Second {
		t.Fatalf("duration: %v", got.Duration)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at: %v", got.StartedAt)
	}
}

func TestListLimit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.Record(ctx, history.Entry{
			Directory: "/watch/show",
			Outcome:   history.OutcomeApplied,
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	entries, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 6; i++ {
		id, err := store.Record(ctx, history.Entry{
			Directory: "/watch/show",
			Outcome:   history.OutcomeApplied,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		lastID = id
	}

	deleted, err := store.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted, got %d", deleted)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(entries))
	}
	if entries[0].ID != lastID {
		t.Fatalf("expected newest entry %d first, got %d", lastID, entries[0].ID)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Record(context.Background(), history.Entry{
		Directory: "/watch/show",
		Outcome:   history.OutcomeApplied,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	entries, err := second.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after reopen, got %d", len(entries))
	}
}
