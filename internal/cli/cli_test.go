package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xqueue/internal/config"
	"xqueue/internal/schedule"
	logx "xqueue/pkg/logx"
)

// testEnv writes a config pointing all state into a temp dir and returns the
// config path plus the dir.
func testEnv(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	raw := "base_dir: " + dir + "\ntimezone: UTC\n" + extra
	if err := os.WriteFile(cfgPath, []byte(raw), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return cfgPath, dir
}

func run(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAddListShowCancelRemove(t *testing.T) {
	cfgPath, _ := testEnv(t, "")

	out, _, err := run(t, cfgPath, "add", "hello world", "--at", "2h", "--json")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var added schedule.Item
	if err := jsonDecode(out, &added); err != nil {
		t.Fatalf("add output: %v (%q)", err, out)
	}
	if added.Status != schedule.StatusPending || added.Text != "hello world" {
		t.Fatalf("unexpected added item: %+v", added)
	}

	out, _, err = run(t, cfgPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, added.ID) || !strings.Contains(out, "pending") {
		t.Fatalf("expected item in list, got %q", out)
	}

	out, _, err = run(t, cfgPath, "show", added.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "hello world") {
		t.Fatalf("expected text in show output, got %q", out)
	}

	if _, _, err := run(t, cfgPath, "cancel", added.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Cancelled items disappear from the default listing but stay with --all.
	out, _, _ = run(t, cfgPath, "list")
	if strings.Contains(out, added.ID) {
		t.Fatalf("cancelled item still in default list: %q", out)
	}
	out, _, _ = run(t, cfgPath, "list", "--all")
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("expected cancelled item with --all, got %q", out)
	}

	// remove only works on pending items.
	if _, _, err := run(t, cfgPath, "remove", added.ID); err == nil {
		t.Fatalf("expected remove of cancelled item to fail")
	}
}

func TestAddRejectsShortLead(t *testing.T) {
	cfgPath, _ := testEnv(t, "runner:\n  min_lead: 5m\n")

	_, _, err := run(t, cfgPath, "add", "too soon", "--at", "1m")
	if err == nil {
		t.Fatalf("expected min-lead rejection")
	}
	if !strings.Contains(err.Error(), "5m") {
		t.Fatalf("expected lead in error, got %v", err)
	}
}

func TestAddRejectsOverlongText(t *testing.T) {
	cfgPath, _ := testEnv(t, "")
	_, _, err := run(t, cfgPath, "add", strings.Repeat("x", maxPostLength+1), "--at", "2h")
	if err == nil || !strings.Contains(err.Error(), "281") {
		t.Fatalf("expected length rejection, got %v", err)
	}
}

func TestRunOncePostsDueItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"555"}}`))
	}))
	defer srv.Close()

	cfgPath, dir := testEnv(t, "api:\n  endpoint: "+srv.URL+"\n")
	t.Setenv("X_ACCESS_TOKEN", "test-token")

	// Seed a due item directly; `add` refuses past times on purpose.
	store, err := schedule.Open(config.StorageConfig{}, filepath.Join(dir, "schedule.json"), logx.Nop())
	if err != nil {
		t.Fatalf("schedule.Open: %v", err)
	}
	it, err := store.Create(context.Background(), schedule.Item{
		ID:          "due123",
		Text:        "scheduled post",
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
		Status:      schedule.StatusPending,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.Close()

	out, _, err := run(t, cfgPath, "run-once")
	if err != nil {
		t.Fatalf("run-once: %v", err)
	}
	if !strings.Contains(out, "posted id="+it.ID) {
		t.Fatalf("expected posted line, got %q", out)
	}
	if !strings.Contains(out, "https://x.com/i/web/status/555") {
		t.Fatalf("expected remote url in output, got %q", out)
	}

	// The pass is idempotent: a second run finds nothing due.
	out, _, err = run(t, cfgPath, "run-once")
	if err != nil {
		t.Fatalf("second run-once: %v", err)
	}
	if strings.Contains(out, "posted id=") {
		t.Fatalf("expected idle second pass, got %q", out)
	}
}

func TestStatusReportsQueue(t *testing.T) {
	cfgPath, _ := testEnv(t, "")
	if _, _, err := run(t, cfgPath, "add", "queued", "--at", "3h"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := run(t, cfgPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "pending:   1") {
		t.Fatalf("expected one pending, got %q", out)
	}
	if !strings.Contains(out, "runner:    idle") {
		t.Fatalf("expected idle runner, got %q", out)
	}
}

func TestAuthCheckWithoutCredentials(t *testing.T) {
	cfgPath, _ := testEnv(t, "")
	t.Setenv("X_ACCESS_TOKEN", "")
	t.Setenv("X_CLIENT_ID", "")
	t.Setenv("X_CLIENT_SECRET", "")

	out, _, err := run(t, cfgPath, "auth", "check")
	if err != nil {
		t.Fatalf("auth check: %v", err)
	}
	if !strings.Contains(out, "X_ACCESS_TOKEN: missing") {
		t.Fatalf("expected missing token report, got %q", out)
	}
}

func jsonDecode(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
