//go:build !sqlite
// +build !sqlite

package schedule

import (
	"errors"
	"time"

	logx "xqueue/pkg/logx"
)

func openSQLite(path string, busyTimeout time.Duration, log logx.Logger) (Store, error) {
	_ = path
	_ = busyTimeout
	_ = log
	return nil, errors.New("sqlite storage not built: build with -tags sqlite")
}
