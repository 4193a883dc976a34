// Package logtail implements tail -f over the cron log for `logs follow`.
//
// It prints the last N lines, then watches the file with fsnotify and streams
// appended lines until the context is cancelled. Truncation (log rotation)
// resets the read offset to the new end of file.
package logtail

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "xqueue/pkg/logx"
)

// Tailer follows a single log file.
type Tailer struct {
	path string
	log  logx.Logger
}

func New(path string, log logx.Logger) (*Tailer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("logtail: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tailer{path: path, log: log}, nil
}

// LastLines returns up to n trailing lines of the file. A missing file is not
// an error: the timer may simply never have fired yet.
func (t *Tailer) LastLines(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, sc.Text())
	}
	return ring, sc.Err()
}

// Follow prints the last n lines to out, then streams appended lines until
// ctx is cancelled. Cancellation is the normal way out and returns nil.
func (t *Tailer) Follow(ctx context.Context, out io.Writer, n int) error {
	last, err := t.LastLines(n)
	if err != nil {
		return err
	}
	for _, ln := range last {
		if _, err := io.WriteString(out, ln+"\n"); err != nil {
			return err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: the file may not exist yet, and
	// rotation replaces the inode.
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	offset := t.currentSize()
	// Poll tick as a safety net for filesystems with unreliable notify.
	tick := time.NewTicker(2 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(t.path) {
				continue
			}
			if off, err := t.emitFrom(out, offset); err == nil {
				offset = off
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Debug("watch error", logx.Err(err))
		case <-tick.C:
			if off, err := t.emitFrom(out, offset); err == nil {
				offset = off
			}
		}
	}
}

// emitFrom writes complete lines appended after offset and returns the new
// offset. A shrunken file means rotation; reading restarts from zero.
func (t *Tailer) emitFrom(out io.Writer, offset int64) (int64, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return offset, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return offset, err
	}
	if st.Size() < offset {
		offset = 0
	}
	if st.Size() == offset {
		return offset, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err == nil {
			if _, werr := io.WriteString(out, line); werr != nil {
				return offset, werr
			}
			offset += int64(len(line))
			continue
		}
		// Partial final line: leave it for the next event.
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		return offset, err
	}
}

func (t *Tailer) currentSize() int64 {
	st, err := os.Stat(t.path)
	if err != nil {
		return 0
	}
	return st.Size()
}
