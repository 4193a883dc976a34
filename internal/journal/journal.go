// Package journal records every delivery attempt, one JSON line per attempt,
// strictly append-only.
//
// The journal is the record of fact; the schedule store only records intent.
// A success entry for an item id is the ground truth for "already delivered",
// which is what makes at-most-once hold across crashed passes: the runner
// appends the success entry before updating the store, so a crash between
// the two is recovered from the journal without another network call.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Outcome classifies a delivery attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one recorded delivery attempt.
type Entry struct {
	ItemID      string    `json:"item_id"`
	AttemptedAt time.Time `json:"attempted_at"`
	Outcome     Outcome   `json:"outcome"`
	RemoteID    string    `json:"remote_id,omitempty"`
	RemoteURL   string    `json:"remote_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	// Text is the body as delivered, kept so history survives item edits
	// and removals.
	Text string `json:"text,omitempty"`
}

// Journal is a file-backed append-only attempt log.
type Journal struct {
	path string
	mu   sync.Mutex
}

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: path is required")
	}
	return &Journal{path: path}, nil
}

// Append writes one entry and fsyncs before returning, so an acknowledged
// append survives a crash immediately after.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if e.AttemptedAt.IsZero() {
		e.AttemptedAt = time.Now().UTC()
	}
	if err := json.NewEncoder(f).Encode(e); err != nil {
		return err
	}
	return f.Sync()
}

// Success returns the first success entry for the item, if any.
func (j *Journal) Success(ctx context.Context, itemID string) (Entry, bool, error) {
	var found Entry
	var ok bool
	err := j.scan(ctx, func(e Entry) bool {
		if e.ItemID == itemID && e.Outcome == OutcomeSuccess {
			found = e
			ok = true
			return false
		}
		return true
	})
	return found, ok, err
}

// FailureCount counts recorded failures for the item. The runner treats this
// as the authoritative attempt counter, reconciling a store counter that a
// killed pass may have left stale.
func (j *Journal) FailureCount(ctx context.Context, itemID string) (int, error) {
	n := 0
	err := j.scan(ctx, func(e Entry) bool {
		if e.ItemID == itemID && e.Outcome == OutcomeFailure {
			n++
		}
		return true
	})
	return n, err
}

// List returns entries attempted at or after since (zero means all), in file
// order, which is append order.
func (j *Journal) List(ctx context.Context, since time.Time) ([]Entry, error) {
	var out []Entry
	err := j.scan(ctx, func(e Entry) bool {
		if since.IsZero() || !e.AttemptedAt.Before(since) {
			out = append(out, e)
		}
		return true
	})
	return out, err
}

// ListByItem returns all entries for one item, in append order.
func (j *Journal) ListByItem(ctx context.Context, itemID string) ([]Entry, error) {
	var out []Entry
	err := j.scan(ctx, func(e Entry) bool {
		if e.ItemID == itemID {
			out = append(out, e)
		}
		return true
	})
	return out, err
}

// scan streams entries to fn until fn returns false. Malformed lines are
// skipped: a torn final line from a crash must not invalidate the history
// before it.
func (j *Journal) scan(ctx context.Context, fn func(Entry) bool) error {
	_ = ctx
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.ItemID == "" {
			continue
		}
		if !fn(e) {
			return nil
		}
	}
	return sc.Err()
}
