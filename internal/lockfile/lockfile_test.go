package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLock(t *testing.T) (*Lock, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runner.lock")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, path
}

func TestAcquireRelease(t *testing.T) {
	l, path := newTestLock(t)

	rec, err := l.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if rec.PID != os.Getpid() {
		t.Fatalf("expected own pid %d, got %d", os.Getpid(), rec.PID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected lock file gone, got %v", err)
	}
	// Releasing again is a no-op.
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestAcquireBusyWithLiveHolder(t *testing.T) {
	l, _ := newTestLock(t)

	if _, err := l.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	// Our own pid is alive, so a second acquire must report busy with the
	// holder's record.
	holder, err := l.Acquire()
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if holder.PID != os.Getpid() {
		t.Fatalf("expected holder pid %d, got %d", os.Getpid(), holder.PID)
	}
}

func TestAcquireRecoversStaleLock(t *testing.T) {
	l, path := newTestLock(t)

	// A pid far beyond pid_max cannot be alive.
	stale := Record{PID: 1 << 30, Hostname: "ghost", AcquiredAt: time.Now().Add(-time.Hour)}
	b, _ := json.Marshal(stale)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rec, err := l.Acquire()
	if err != nil {
		t.Fatalf("expected stale lock recovery, got %v", err)
	}
	if rec.PID != os.Getpid() {
		t.Fatalf("expected own pid after recovery, got %d", rec.PID)
	}
}

func TestAcquireClearsUnreadableRecord(t *testing.T) {
	l, path := newTestLock(t)

	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := l.Acquire(); err != nil {
		t.Fatalf("expected acquire over unreadable record, got %v", err)
	}
}

func TestHeld(t *testing.T) {
	l, _ := newTestLock(t)

	if _, active, err := l.Held(); err != nil || active {
		t.Fatalf("expected idle lock, got active=%t err=%v", active, err)
	}
	if _, err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rec, active, err := l.Held()
	if err != nil {
		t.Fatalf("Held: %v", err)
	}
	if !active || rec.PID != os.Getpid() {
		t.Fatalf("expected active holder %d, got active=%t pid=%d", os.Getpid(), active, rec.PID)
	}
}
