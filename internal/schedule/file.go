package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "xqueue/pkg/logx"
)

// document is the persisted schedule: one JSON object holding every item.
// It is always replaced whole (temp file + rename), never patched in place.
type document struct {
	Version int             `json:"version"`
	Items   map[string]Item `json:"items"`
}

const docVersion = 1

type fileStore struct {
	log  logx.Logger
	path string

	mu  sync.Mutex
	now func() time.Time
}

func openFile(path string, log logx.Logger) (Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("schedule: store path is required")
	}
	s := &fileStore{log: log, path: path, now: func() time.Time { return time.Now().UTC() }}
	// Fail fast on corruption so the caller surfaces it before mutating.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) load() (*document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &document{Version: docVersion, Items: map[string]Item{}}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return &document{Version: docVersion, Items: map[string]Item{}}, nil
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if doc.Version != docVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, s.path, doc.Version)
	}
	if doc.Items == nil {
		doc.Items = map[string]Item{}
	}
	return &doc, nil
}

// save writes the whole document to a temp file in the same directory and
// renames it over the store, so readers only ever see the old or new state.
func (s *fileStore) save(doc *document) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	tmpName = ""
	return nil
}

// mutate runs fn against a freshly loaded snapshot and persists the result.
func (s *fileStore) mutate(fn func(doc *document) error) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *fileStore) Create(ctx context.Context, it Item) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(it.ID) == "" {
		it.ID = NewID()
	}
	if it.Status == "" {
		it.Status = StatusPending
	}
	now := s.now()
	it.ScheduledAt = it.ScheduledAt.UTC()
	it.CreatedAt = now
	it.UpdatedAt = now

	err := s.mutate(func(doc *document) error {
		if _, exists := doc.Items[it.ID]; exists {
			return fmt.Errorf("schedule: duplicate id %q", it.ID)
		}
		doc.Items[it.ID] = it
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *fileStore) Get(ctx context.Context, id string) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Item{}, err
	}
	it, ok := doc.Items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (s *fileStore) List(ctx context.Context, f Filter) ([]Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(doc.Items))
	for _, it := range doc.Items {
		if f.matches(it) {
			out = append(out, it)
		}
	}
	sortItems(out)
	return out, nil
}

func (s *fileStore) Update(ctx context.Context, id string, p Patch) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated Item
	err := s.mutate(func(doc *document) error {
		it, ok := doc.Items[id]
		if !ok {
			return ErrNotFound
		}
		if it.Status != StatusPending {
			return ErrConflict
		}
		if p.Text != nil {
			it.Text = *p.Text
		}
		if p.ScheduledAt != nil {
			it.ScheduledAt = p.ScheduledAt.UTC()
		}
		if p.Timezone != nil {
			it.Timezone = *p.Timezone
		}
		it.UpdatedAt = s.now()
		doc.Items[id] = it
		updated = it
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(doc *document) error {
		it, ok := doc.Items[id]
		if !ok {
			return ErrNotFound
		}
		if it.Status != StatusPending {
			return ErrConflict
		}
		delete(doc.Items, id)
		return nil
	})
}

func (s *fileStore) Cancel(ctx context.Context, id string) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled Item
	err := s.mutate(func(doc *document) error {
		it, ok := doc.Items[id]
		if !ok {
			return ErrNotFound
		}
		if it.Status != StatusPending {
			return ErrConflict
		}
		it.Status = StatusCancelled
		it.UpdatedAt = s.now()
		doc.Items[id] = it
		cancelled = it
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return cancelled, nil
}

func (s *fileStore) Due(ctx context.Context, now time.Time) ([]Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range doc.Items {
		if it.Status == StatusPending && !it.ScheduledAt.After(now) {
			out = append(out, it)
		}
	}
	sortItems(out)
	return out, nil
}

func (s *fileStore) MarkPosted(ctx context.Context, id, remoteID, remoteURL string) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var posted Item
	err := s.mutate(func(doc *document) error {
		it, ok := doc.Items[id]
		if !ok {
			return ErrNotFound
		}
		// Already converged (e.g. a prior pass got this far): nothing to do.
		if it.Status == StatusPosted && it.RemoteID == remoteID {
			posted = it
			return nil
		}
		if it.Status != StatusPending {
			return ErrConflict
		}
		it.Status = StatusPosted
		it.RemoteID = remoteID
		it.RemoteURL = remoteURL
		it.LastError = ""
		it.UpdatedAt = s.now()
		doc.Items[id] = it
		posted = it
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return posted, nil
}

func (s *fileStore) RecordFailure(ctx context.Context, id string, attempts int, lastErr string, terminal bool) (Item, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed Item
	err := s.mutate(func(doc *document) error {
		it, ok := doc.Items[id]
		if !ok {
			return ErrNotFound
		}
		if it.Status != StatusPending {
			return ErrConflict
		}
		it.RetryCount = attempts
		it.LastError = lastErr
		if terminal {
			it.Status = StatusFailed
		}
		it.UpdatedAt = s.now()
		doc.Items[id] = it
		failed = it
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return failed, nil
}

// sortItems orders ascending by scheduled time, ties broken by id so a pass
// processes a stable sequence.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID < b.ID
	})
}
