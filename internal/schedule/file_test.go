package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "xqueue/pkg/logx"
)

func newTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	s, err := openFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func pendingItem(id string, at time.Time) Item {
	return Item{ID: id, Text: "post " + id, ScheduledAt: at, Status: StatusPending}
}

func TestFileStoreCreateGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	created, err := s.Create(ctx, pendingItem("aaa", at))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set: %+v", created)
	}

	got, err := s.Get(ctx, "aaa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "post aaa" || !got.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected item: %+v", got)
	}

	if _, err := s.Create(ctx, pendingItem("aaa", at)); err == nil {
		t.Fatalf("expected duplicate id create to fail")
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s1, err := openFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	if _, err := s1.Create(ctx, pendingItem("aaa", at)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s1.Close()

	s2, err := openFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "aaa")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Text != "post aaa" {
		t.Fatalf("unexpected item after reopen: %+v", got)
	}
}

func TestFileStoreDueOrderAndTieBreak(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same instant for bbb/aaa forces the id tie-break; ccc is later but due;
	// ddd is in the future and must not appear.
	for _, it := range []Item{
		pendingItem("bbb", now.Add(-time.Hour)),
		pendingItem("aaa", now.Add(-time.Hour)),
		pendingItem("ccc", now.Add(-time.Minute)),
		pendingItem("ddd", now.Add(time.Minute)),
	} {
		if _, err := s.Create(ctx, it); err != nil {
			t.Fatalf("Create %s: %v", it.ID, err)
		}
	}

	due, err := s.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	want := []string{"aaa", "bbb", "ccc"}
	if len(due) != len(want) {
		t.Fatalf("expected %d due items, got %d", len(want), len(due))
	}
	for i, id := range want {
		if due[i].ID != id {
			t.Fatalf("due[%d]: expected %s, got %s", i, id, due[i].ID)
		}
	}
}

func TestFileStoreUpdatePendingOnly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.Create(ctx, pendingItem("aaa", at)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	text := "edited"
	updated, err := s.Update(ctx, "aaa", Patch{Text: &text})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Text != "edited" {
		t.Fatalf("expected edited text, got %q", updated.Text)
	}

	if _, err := s.MarkPosted(ctx, "aaa", "r1", "https://x.com/i/web/status/r1"); err != nil {
		t.Fatalf("MarkPosted: %v", err)
	}
	if _, err := s.Update(ctx, "aaa", Patch{Text: &text}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on posted item, got %v", err)
	}
	if err := s.Delete(ctx, "aaa"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on delete of posted item, got %v", err)
	}
	if _, err := s.Cancel(ctx, "aaa"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on cancel of posted item, got %v", err)
	}
}

func TestFileStoreCancelAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"aaa", "bbb"} {
		if _, err := s.Create(ctx, pendingItem(id, at)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	it, err := s.Cancel(ctx, "aaa")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if it.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", it.Status)
	}
	// Cancelled items stay listable but are never due.
	due, err := s.Due(ctx, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "bbb" {
		t.Fatalf("expected only bbb due, got %+v", due)
	}

	if err := s.Delete(ctx, "bbb"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "bbb"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStoreMarkPostedIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.Create(ctx, pendingItem("aaa", at)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.MarkPosted(ctx, "aaa", "r1", "u1"); err != nil {
		t.Fatalf("MarkPosted: %v", err)
	}
	// Converging again with the same remote id is a no-op, not a conflict.
	it, err := s.MarkPosted(ctx, "aaa", "r1", "u1")
	if err != nil {
		t.Fatalf("second MarkPosted: %v", err)
	}
	if it.Status != StatusPosted || it.RemoteID != "r1" {
		t.Fatalf("unexpected item: %+v", it)
	}
	if _, err := s.MarkPosted(ctx, "aaa", "r2", "u2"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for different remote id, got %v", err)
	}
}

func TestFileStoreRecordFailure(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.Create(ctx, pendingItem("aaa", at)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	it, err := s.RecordFailure(ctx, "aaa", 1, "boom", false)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if it.Status != StatusPending || it.RetryCount != 1 || it.LastError != "boom" {
		t.Fatalf("expected pending retry state, got %+v", it)
	}

	it, err = s.RecordFailure(ctx, "aaa", 2, "boom again", true)
	if err != nil {
		t.Fatalf("terminal RecordFailure: %v", err)
	}
	if it.Status != StatusFailed || it.RetryCount != 2 {
		t.Fatalf("expected failed terminal state, got %+v", it)
	}
}

func TestFileStoreListFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"aaa", "bbb", "ccc"} {
		if _, err := s.Create(ctx, pendingItem(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if _, err := s.Cancel(ctx, "bbb"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending, err := s.List(ctx, Filter{Statuses: []Status{StatusPending}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}

	late, err := s.List(ctx, Filter{Since: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(late) != 1 || late[0].ID != "ccc" {
		t.Fatalf("expected only ccc, got %+v", late)
	}
}

func TestFileStoreCorruptIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := openFile(path, logx.Nop()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFileStoreIgnoresLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	ctx := context.Background()

	s, err := openFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer s.Close()
	if _, err := s.Create(ctx, pendingItem("aaa", time.Now().UTC())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A temp file abandoned by a killed writer must not affect reads.
	if err := os.WriteFile(filepath.Join(dir, ".schedule-dead.tmp"), []byte("{garb"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	it, err := s.Get(ctx, "aaa")
	if err != nil {
		t.Fatalf("Get with leftover temp file: %v", err)
	}
	if it.ID != "aaa" {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestFileStoreEmptyFileIsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := openFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("openFile on empty file: %v", err)
	}
	defer s.Close()
	items, err := s.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty store, got %d items", len(items))
	}
}
