package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"xqueue/internal/config"
	logx "xqueue/pkg/logx"
)

// Store is the persistence API for the post queue.
//
// Create/Get/List/Update/Delete are the user-facing CRUD surface; Update and
// Delete apply to pending items only (ErrConflict otherwise). Due, MarkPosted
// and RecordFailure are the runner's surface: Due returns pending items whose
// scheduled instant has passed, oldest first with ties broken by id.
type Store interface {
	Create(ctx context.Context, it Item) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context, f Filter) ([]Item, error)
	Update(ctx context.Context, id string, p Patch) (Item, error)
	Delete(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) (Item, error)

	Due(ctx context.Context, now time.Time) ([]Item, error)
	MarkPosted(ctx context.Context, id, remoteID, remoteURL string) (Item, error)
	RecordFailure(ctx context.Context, id string, attempts int, lastErr string, terminal bool) (Item, error)

	Close() error
}

// Open initializes the configured store driver.
func Open(cfg config.StorageConfig, path string, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(path, log)
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.BusyTimeout)
		if err != nil {
			return nil, err
		}
		return openSQLite(path, busy, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
