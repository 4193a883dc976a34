package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return j, path
}

func TestAppendAndSuccess(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{ItemID: "aaa", AttemptedAt: at, Outcome: OutcomeFailure, Error: "boom"},
		{ItemID: "aaa", AttemptedAt: at.Add(time.Minute), Outcome: OutcomeSuccess, RemoteID: "r1", RemoteURL: "u1"},
		{ItemID: "bbb", AttemptedAt: at, Outcome: OutcomeFailure, Error: "boom"},
	}
	for _, e := range entries {
		if err := j.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, ok, err := j.Success(ctx, "aaa")
	if err != nil {
		t.Fatalf("Success: %v", err)
	}
	if !ok || got.RemoteID != "r1" {
		t.Fatalf("expected success entry with r1, got ok=%t %+v", ok, got)
	}

	if _, ok, err := j.Success(ctx, "bbb"); err != nil || ok {
		t.Fatalf("expected no success for bbb, got ok=%t err=%v", ok, err)
	}
}

func TestFailureCount(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := j.Append(ctx, Entry{ItemID: "aaa", Outcome: OutcomeFailure, Error: "boom"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := j.Append(ctx, Entry{ItemID: "aaa", Outcome: OutcomeSuccess, RemoteID: "r1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := j.FailureCount(ctx, "aaa")
	if err != nil {
		t.Fatalf("FailureCount: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 failures, got %d", n)
	}
	if n, _ := j.FailureCount(ctx, "zzz"); n != 0 {
		t.Fatalf("expected 0 failures for unknown item, got %d", n)
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	if _, ok, err := j.Success(ctx, "aaa"); err != nil || ok {
		t.Fatalf("expected empty journal, got ok=%t err=%v", ok, err)
	}
	list, err := j.List(ctx, time.Time{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no entries, got %d", len(list))
	}
}

func TestTornLineIsSkipped(t *testing.T) {
	j, path := newTestJournal(t)
	ctx := context.Background()

	if err := j.Append(ctx, Entry{ItemID: "aaa", Outcome: OutcomeSuccess, RemoteID: "r1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Simulate a crash mid-write: a torn trailing line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"item_id":"bbb","outco`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	got, ok, err := j.Success(ctx, "aaa")
	if err != nil {
		t.Fatalf("Success after torn line: %v", err)
	}
	if !ok || got.RemoteID != "r1" {
		t.Fatalf("expected intact history before torn line, got ok=%t %+v", ok, got)
	}

	// The journal stays appendable after the torn line.
	if err := j.Append(ctx, Entry{ItemID: "ccc", Outcome: OutcomeFailure, Error: "x"}); err != nil {
		t.Fatalf("Append after torn line: %v", err)
	}
	if n, _ := j.FailureCount(ctx, "ccc"); n != 1 {
		t.Fatalf("expected entry after torn line to count, got %d", n)
	}
}

func TestListSinceAndByItem(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		e := Entry{ItemID: "aaa", AttemptedAt: at.Add(time.Duration(i) * time.Hour), Outcome: OutcomeFailure, Error: "x"}
		if i%2 == 1 {
			e.ItemID = "bbb"
		}
		if err := j.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	list, err := j.List(ctx, at.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries since cutoff, got %d", len(list))
	}

	byItem, err := j.ListByItem(ctx, "bbb")
	if err != nil {
		t.Fatalf("ListByItem: %v", err)
	}
	if len(byItem) != 2 {
		t.Fatalf("expected 2 entries for bbb, got %d", len(byItem))
	}
	if !byItem[0].AttemptedAt.Before(byItem[1].AttemptedAt) {
		t.Fatalf("expected append order, got %+v", byItem)
	}
}
