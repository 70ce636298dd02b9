// SPDX-License-Identifier: Apache-2.0
// Command zwdriverd is a thin wiring example: load Options with the config
// package, open a serial-attached controller, and log every notification the
// driver posts until interrupted. It exists to show how the pieces fit
// together, not as a supported daemon (spec.md §1 leaves CLI/option-parsing
// as an interface, not a requirement).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/gozwave/core/config"
	"github.com/gozwave/core/driver"
	"github.com/gozwave/core/notify"
	"github.com/gozwave/core/transport"
)

func main() {
	devicePath := flag.String("device", "/dev/ttyACM0", "serial device path")
	configDir := flag.String("config-dir", ".", "directory to search for zwdriver.yaml")
	flag.Parse()

	log := logrus.StandardLogger()

	opts, err := config.Load(*configDir)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	opts.Logger = log

	d := driver.New(&transport.SerialTransport{Path: *devicePath}, opts)
	d.AddWatcher(func(n notify.Notification) {
		log.WithFields(logrus.Fields{
			"kind": n.Kind,
			"node": n.NodeID,
		}).Info("notification")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start driver")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := d.Stop(); err != nil {
		log.WithError(err).Error("failed to stop driver cleanly")
	}
}
