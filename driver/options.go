// SPDX-License-Identifier: Apache-2.0
package driver

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Driver. Zero-value Options is usable: every field has
// a documented default applied by New (spec.md §6).
type Options struct {
	// UserPath is the directory the snapshot and button-map documents are
	// read from and written to. Defaults to the current directory.
	UserPath string

	// SaveConfiguration, if true, writes the snapshot document on Stop and
	// each time a node reaches StageComplete.
	SaveConfiguration bool

	// DriverMaxAttempts bounds how many times Start retries opening the
	// transport before giving up; 0 means unlimited (spec.md §7).
	DriverMaxAttempts int

	// NotifyTransactions, if true, posts a MsgComplete notification for
	// every message the transaction engine finishes, not just the
	// structural node/value events. Off by default to avoid flooding a
	// watcher that only cares about node state.
	NotifyTransactions bool

	// PollInterval is the full-sweep duration passed to the poller
	// (spec.md §4.6). Defaults to 30s if zero.
	PollInterval time.Duration

	// Logger receives the driver's structured log output. Defaults to
	// logrus.StandardLogger().
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.UserPath == "" {
		o.UserPath = "."
	}
	if o.PollInterval == 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}
