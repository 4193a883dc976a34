// Package runner orchestrates one delivery pass over the due queue.
//
// A pass is one short-lived invocation driven by an external timer: take the
// lock, collect due items as of a single captured "now", deliver them in
// scheduled order, release the lock. All state lives in the injected
// collaborators, so ProcessOnce is a pure function of (store, journal, lock,
// publisher, now) and tests run it against in-memory fakes.
//
// Ordering is what makes at-most-once hold: the journal success entry is
// written before the store update, and the journal is consulted before every
// publish. A crash after publish but before the store update is repaired on
// the next pass from the journal, with no second network call.
package runner

import (
	"context"
	"fmt"
	"time"

	"xqueue/internal/journal"
	"xqueue/internal/lockfile"
	"xqueue/internal/schedule"
	logx "xqueue/pkg/logx"
)

// Store is the slice of the schedule store the runner needs.
type Store interface {
	Due(ctx context.Context, now time.Time) ([]schedule.Item, error)
	MarkPosted(ctx context.Context, id, remoteID, remoteURL string) (schedule.Item, error)
	RecordFailure(ctx context.Context, id string, attempts int, lastErr string, terminal bool) (schedule.Item, error)
}

// Journal is the attempt log consulted and written by the runner.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
	Success(ctx context.Context, itemID string) (journal.Entry, bool, error)
	FailureCount(ctx context.Context, itemID string) (int, error)
}

// Locker guards the pass. Acquire must not block: it either holds the lock
// or reports lockfile.ErrBusy.
type Locker interface {
	Acquire() (lockfile.Record, error)
	Release() error
}

// PublishResult identifies the delivered post on the remote platform.
type PublishResult struct {
	RemoteID  string
	RemoteURL string
}

// Publisher performs the actual post. Failures may be false negatives (the
// post landed, the ack was lost), which is why the retry budget is small.
type Publisher interface {
	Publish(ctx context.Context, text string) (PublishResult, error)
}

// Outcome is the per-item result of a pass.
type Outcome string

const (
	// OutcomePosted: published during this pass.
	OutcomePosted Outcome = "posted"
	// OutcomeFailed: the attempt failed (terminal or not), or the item's
	// retry budget was already exhausted.
	OutcomeFailed Outcome = "failed"
	// OutcomeAlreadyDone: the journal proved a prior pass delivered it; the
	// store was converged without a network call.
	OutcomeAlreadyDone Outcome = "already_done"
)

// ItemResult is one item's outcome within a pass.
type ItemResult struct {
	ID        string
	Text      string
	Outcome   Outcome
	RemoteID  string
	RemoteURL string
	Err       string
	Attempts  int
	Terminal  bool
}

// PassReport summarizes one completed pass.
type PassReport struct {
	Now     time.Time
	Checked int
	Results []ItemResult
}

func (r PassReport) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

type Runner struct {
	store    Store
	journal  Journal
	lock     Locker
	pub      Publisher
	log      logx.Logger
	retryMax int
}

func New(store Store, jrn Journal, lock Locker, pub Publisher, retryMax int, log logx.Logger) *Runner {
	if retryMax <= 0 {
		retryMax = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{store: store, journal: jrn, lock: lock, pub: pub, retryMax: retryMax, log: log}
}

// ProcessOnce runs one delivery pass as of now.
//
// Pass-level faults (lockfile.ErrBusy, schedule.ErrCorrupt) abort the pass
// and are returned. Per-item failures never do: each item is isolated so one
// bad item cannot block others due in the same pass.
func (r *Runner) ProcessOnce(ctx context.Context, now time.Time) (PassReport, error) {
	if _, err := r.lock.Acquire(); err != nil {
		return PassReport{}, err
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			r.log.Error("lock release failed", logx.Err(err))
		}
	}()

	// One captured now: the due-set stays consistent even if the pass is slow.
	due, err := r.store.Due(ctx, now)
	if err != nil {
		return PassReport{}, err
	}

	report := PassReport{Now: now, Checked: len(due)}
	for _, it := range due {
		res := r.processItem(ctx, it, now)
		report.Results = append(report.Results, res)
		r.logResult(res)
	}
	return report, nil
}

func (r *Runner) processItem(ctx context.Context, it schedule.Item, now time.Time) ItemResult {
	res := ItemResult{ID: it.ID, Text: it.Text}

	// Duplicate-prevention path: a prior pass may have published and crashed
	// before updating the store. The journal decides; no network call here.
	if done, ok, err := r.journal.Success(ctx, it.ID); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Sprintf("journal read: %v", err)
		return res
	} else if ok {
		if _, err := r.store.MarkPosted(ctx, it.ID, done.RemoteID, done.RemoteURL); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Sprintf("store converge: %v", err)
			return res
		}
		res.Outcome = OutcomeAlreadyDone
		res.RemoteID = done.RemoteID
		res.RemoteURL = done.RemoteURL
		return res
	}

	// The journal's failure count is authoritative; a killed pass may have
	// left the store counter behind.
	attempts := it.RetryCount
	if n, err := r.journal.FailureCount(ctx, it.ID); err == nil && n > attempts {
		attempts = n
	}
	if attempts >= r.retryMax {
		// Budget already spent; finalize without another attempt.
		lastErr := it.LastError
		if lastErr == "" {
			lastErr = "retry budget exhausted"
		}
		if _, err := r.store.RecordFailure(ctx, it.ID, attempts, lastErr, true); err != nil {
			res.Err = fmt.Sprintf("store finalize: %v", err)
		} else {
			res.Err = lastErr
		}
		res.Outcome = OutcomeFailed
		res.Attempts = attempts
		res.Terminal = true
		return res
	}

	pub, pubErr := r.pub.Publish(ctx, it.Text)
	if pubErr == nil {
		// Journal write happens-before the store update. The reverse order
		// would risk a duplicate publish after a crash in between.
		jerr := r.journal.Append(ctx, journal.Entry{
			ItemID:      it.ID,
			AttemptedAt: now,
			Outcome:     journal.OutcomeSuccess,
			RemoteID:    pub.RemoteID,
			RemoteURL:   pub.RemoteURL,
			Text:        it.Text,
		})
		if jerr != nil {
			// The post is out; still converge the store so the next pass
			// does not publish again.
			r.log.Error("journal append failed after publish", logx.String("id", it.ID), logx.Err(jerr))
		}
		if _, err := r.store.MarkPosted(ctx, it.ID, pub.RemoteID, pub.RemoteURL); err != nil {
			// Recoverable on the next pass via the journal entry.
			r.log.Error("store update failed after publish", logx.String("id", it.ID), logx.Err(err))
		}
		res.Outcome = OutcomePosted
		res.RemoteID = pub.RemoteID
		res.RemoteURL = pub.RemoteURL
		return res
	}

	attempts++
	terminal := attempts >= r.retryMax
	if err := r.journal.Append(ctx, journal.Entry{
		ItemID:      it.ID,
		AttemptedAt: now,
		Outcome:     journal.OutcomeFailure,
		Error:       pubErr.Error(),
		Text:        it.Text,
	}); err != nil {
		r.log.Error("journal append failed", logx.String("id", it.ID), logx.Err(err))
	}
	if _, err := r.store.RecordFailure(ctx, it.ID, attempts, pubErr.Error(), terminal); err != nil {
		r.log.Error("store update failed", logx.String("id", it.ID), logx.Err(err))
	}
	res.Outcome = OutcomeFailed
	res.Err = pubErr.Error()
	res.Attempts = attempts
	res.Terminal = terminal
	return res
}

func (r *Runner) logResult(res ItemResult) {
	switch res.Outcome {
	case OutcomePosted:
		r.log.Info("posted", logx.String("id", res.ID), logx.String("url", res.RemoteURL))
	case OutcomeAlreadyDone:
		r.log.Info("already delivered; store converged", logx.String("id", res.ID), logx.String("url", res.RemoteURL))
	default:
		r.log.Warn("delivery failed",
			logx.String("id", res.ID),
			logx.String("err", res.Err),
			logx.Int("attempts", res.Attempts),
			logx.Bool("terminal", res.Terminal),
		)
	}
}
