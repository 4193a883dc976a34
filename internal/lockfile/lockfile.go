// Package lockfile provides the single-host mutual exclusion primitive that
// keeps at most one runner pass active at a time.
//
// The protocol is the file itself: presence means a pass is (or was) running,
// the recorded pid decides whether the holder is still alive. A lock left by
// a crashed process is detected by pid liveness and removed on the next
// acquire, so a crash never wedges future runs.
package lockfile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrBusy means another live process holds the lock. The caller must abort
// its pass without side effects.
var ErrBusy = errors.New("lockfile: held by another process")

// Record identifies the lock holder.
type Record struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a named file lock. Zero concurrent holders system-wide is encoded
// as "file absent".
type Lock struct {
	path string
}

func New(path string) (*Lock, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("lockfile: path is required")
	}
	return &Lock{path: path}, nil
}

// Acquire attempts to take the lock without blocking.
//
// On success it returns this process's record. If a live holder exists it
// returns ErrBusy along with the holder's record. A record pointing at a dead
// pid is removed and acquisition retried once within the same call.
func (l *Lock) Acquire() (Record, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := l.tryCreate()
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return Record{}, err
		}

		holder, ok, rerr := l.Read()
		if rerr != nil {
			return Record{}, rerr
		}
		if ok && pidAlive(holder.PID) {
			return holder, ErrBusy
		}
		// Stale (crashed holder, or unreadable record): clear and retry once.
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Record{}, err
		}
	}
	return Record{}, ErrBusy
}

// Release removes the lock unconditionally. Missing file is not an error so
// release is safe on every exit path.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Read returns the current lock record, if one exists and parses.
func (l *Lock) Read() (Record, bool, error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		// Unreadable record: report "present but unknown holder" so Acquire
		// treats it as stale rather than failing forever.
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Held reports whether the lock is currently held by a live process.
func (l *Lock) Held() (Record, bool, error) {
	rec, ok, err := l.Read()
	if err != nil || !ok {
		return Record{}, false, err
	}
	return rec, pidAlive(rec.PID), nil
}

func (l *Lock) tryCreate() (Record, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Record{}, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Record{}, err
	}

	host, _ := os.Hostname()
	rec := Record{PID: os.Getpid(), Hostname: host, AcquiredAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path)
		return Record{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(l.path)
		return Record{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return Record{}, err
	}
	return rec, nil
}

// pidAlive probes the pid with signal 0. EPERM still means the process
// exists (owned by someone else).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
