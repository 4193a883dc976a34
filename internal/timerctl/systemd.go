package timerctl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	logx "xqueue/pkg/logx"
)

const (
	serviceUnit = "xqueue-runner.service"
	timerUnit   = "xqueue-runner.timer"
)

// systemdBackend manages a per-minute systemd user timer. Unit files live in
// ~/.config/systemd/user and are controlled over the user D-Bus connection.
type systemdBackend struct {
	exe     string
	logPath string
	log     logx.Logger
}

func (b *systemdBackend) unitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

func (b *systemdBackend) Install(ctx context.Context) (string, error) {
	dir, err := b.unitDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, serviceUnit), []byte(b.serviceFile()), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, timerUnit), []byte(b.timerFile()), 0o644); err != nil {
		return "", err
	}

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return "", err
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{timerUnit}, false, true); err != nil {
		return "", err
	}
	if _, err := conn.StartUnitContext(ctx, timerUnit, "replace", nil); err != nil {
		return "", err
	}
	b.log.Info("systemd user timer installed", logx.String("unit", timerUnit))
	return timerUnit + " (every minute)", nil
}

func (b *systemdBackend) Remove(ctx context.Context) (int, error) {
	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	// Stop/disable may fail when the unit never existed; removal of the
	// files is what counts.
	if _, err := conn.StopUnitContext(ctx, timerUnit, "replace", nil); err != nil {
		b.log.Debug("timer stop failed", logx.Err(err))
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{timerUnit}, false); err != nil {
		b.log.Debug("timer disable failed", logx.Err(err))
	}

	dir, err := b.unitDir()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, unit := range []string{timerUnit, serviceUnit} {
		err := os.Remove(filepath.Join(dir, unit))
		if err == nil {
			removed++
		} else if !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func (b *systemdBackend) Status(ctx context.Context) (Status, error) {
	st := Status{Backend: "systemd"}

	dir, err := b.unitDir()
	if err != nil {
		return st, err
	}
	if _, err := os.Stat(filepath.Join(dir, timerUnit)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	st.Installed = true

	conn, err := dbus.NewUserConnectionContext(ctx)
	if err != nil {
		st.Detail = "unit file present; systemd unreachable"
		return st, nil
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, timerUnit)
	if err != nil {
		st.Detail = "unit file present; state unknown"
		return st, nil
	}
	if s, ok := props["ActiveState"].(string); ok {
		st.Detail = timerUnit + " " + s
	}
	if usec, ok := props["NextElapseUSecRealtime"].(uint64); ok && usec > 0 {
		st.NextRun = time.UnixMicro(int64(usec))
	}
	return st, nil
}

func (b *systemdBackend) serviceFile() string {
	return fmt.Sprintf(`[Unit]
Description=xqueue run-once delivery pass

[Service]
Type=oneshot
ExecStart=%s run-once
StandardOutput=append:%s
StandardError=append:%s
`, b.exe, b.logPath, b.logPath)
}

func (b *systemdBackend) timerFile() string {
	return fmt.Sprintf(`[Unit]
Description=Per-minute %s delivery timer

[Timer]
OnCalendar=*-*-* *:*:00
AccuracySec=1s

[Install]
WantedBy=timers.target
`, filepath.Base(b.exe))
}
