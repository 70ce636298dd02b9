// SPDX-License-Identifier: Apache-2.0
// Package driver wires the framer, transaction engine, send-queue
// scheduler, node manager, notification bus, poller and persistence layer
// of spec.md into the single Driver type a caller actually opens a
// controller through — grounded on the teacher's controller.Controller,
// generalised from "one packet type" to the full node/command-class model.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/notify"
	"github.com/gozwave/core/persist"
	"github.com/gozwave/core/poll"
	"github.com/gozwave/core/queue"
	"github.com/gozwave/core/transport"
	"github.com/gozwave/core/txn"
)

// Driver owns one controller connection end to end. Exactly one goroutine
// (run) ever touches queues, engine and the controller-command state
// without sendMu held; everything else reaches them through sendMu, giving
// the two-mutex model of spec.md §5 (the other mutex being each node's own,
// entirely private to package node).
type Driver struct {
	transport transport.Transport
	opts      Options
	log       *logrus.Entry
	stats     *Statistics

	sendMu  sync.Mutex
	queues  *queue.Queues
	engine  *txn.Engine
	waiters map[*message.Message]chan error

	nodes  *node.Table
	notify *notify.Bus
	poller *poll.List

	homeID                 uint32
	controllerNodeID       uint8
	apiCapabilities        uint8
	controllerCapabilities uint8
	sucNodeID              uint8

	cc      ccState
	buttons persist.ButtonMap

	inbound chan inboundEvent
	exit    chan struct{}
	stopped chan struct{}

	callbackSeq uint8
}

// New returns a Driver bound to t, not yet started.
func New(t transport.Transport, opts Options) *Driver {
	opts = opts.withDefaults()
	stats := NewStatistics()
	d := &Driver{
		transport: t,
		opts:      opts,
		log:       opts.Logger.WithField("component", "driver"),
		stats:     stats,
		queues:    queue.New(),
		engine:    txn.New(stats),
		waiters:   make(map[*message.Message]chan error),
		nodes:     node.NewTable(),
		notify:    notify.New(),
		poller:    poll.New(),
		buttons:   make(persist.ButtonMap),
		inbound:   make(chan inboundEvent, 64),
		exit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	d.poller.SetInterval(opts.PollInterval)
	return d
}

// Statistics returns the driver's live counters.
func (d *Driver) Statistics() *Statistics { return d.stats }

// AddWatcher registers fn to receive every notification the driver posts.
func (d *Driver) AddWatcher(fn notify.Watcher) { d.notify.AddWatcher(fn) }

// GetNode returns the node record for id, or nil if unknown.
func (d *Driver) GetNode(id uint8) *node.Node { return d.nodes.Get(id) }

// GetNodes returns every known node, ascending by id.
func (d *Driver) GetNodes() []*node.Node { return d.nodes.All() }

// nextCallbackID returns a rolling 1..255 callback id (0 is reserved for
// "no callback expected"), matching the teacher's message layer convention.
func (d *Driver) nextCallbackID() uint8 {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	d.callbackSeq++
	if d.callbackSeq == 0 {
		d.callbackSeq = 1
	}
	return d.callbackSeq
}

// Start opens the transport (retrying with spec.md §7's backoff schedule),
// launches the reader, main-loop and poll goroutines, runs the controller
// init sequence, loads any persisted snapshot for the discovered home id,
// and requests the controller's init data.
func (d *Driver) Start(ctx context.Context) error {
	if err := transport.OpenWithBackoff(ctx, d.transport, d.opts.DriverMaxAttempts); err != nil {
		return fmt.Errorf("driver: open transport: %w", err)
	}

	go d.readLoop(ctx)
	go d.run(ctx)
	go d.pollLoop(ctx)

	if err := d.runInitSequence(ctx); err != nil {
		d.log.WithError(err).Warn("init sequence incomplete, continuing with partial controller state")
	}

	d.loadPersisted()

	if err := d.requestInitData(ctx); err != nil {
		d.log.WithError(err).Warn("failed to request init data")
	}

	d.notify.DriverReady()
	d.notify.Drain()
	return nil
}

// Stop signals the main loop to exit, waits for it, optionally saves the
// snapshot, and closes the transport. Safe to call once.
func (d *Driver) Stop() error {
	close(d.exit)
	<-d.stopped

	if d.opts.SaveConfiguration {
		d.save()
	}
	return d.transport.Close()
}

// run is the single driver thread of spec.md §5: it multi-waits on exit,
// every inbound event, every queue's non-empty signal and the current
// transaction's retry deadline, pumping the scheduler whenever any of them
// fires. Strict priority order is enforced by queue.Queues.Pop, not by
// which select case happened to fire.
func (d *Driver) run(ctx context.Context) {
	defer close(d.stopped)

	retryTimer := time.NewTimer(time.Hour)
	retryTimer.Stop()
	defer retryTimer.Stop()

	for {
		d.pump(ctx)
		armRetryTimer(retryTimer, d.retryDeadline())

		select {
		case <-d.exit:
			d.drainOnExit()
			return
		case ev := <-d.inbound:
			d.handleInbound(ctx, ev)
		case <-d.queues.Signal(queue.Command):
		case <-d.queues.Signal(queue.WakeUp):
		case <-d.queues.Signal(queue.Send):
		case <-d.queues.Signal(queue.Query):
		case <-d.queues.Signal(queue.Poll):
		case <-retryTimer.C:
			d.handleRetryTimeout(ctx)
		}
	}
}

// armRetryTimer resets t to fire at deadline, or leaves it stopped if
// deadline is zero (no transaction outstanding).
func armRetryTimer(t *time.Timer, deadline time.Time) {
	t.Stop()
	if deadline.IsZero() {
		return
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func (d *Driver) retryDeadline() time.Time {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if !d.engine.InFlight() {
		return time.Time{}
	}
	return d.engine.RetryDeadline()
}

// pump arms the next queued message if the engine is idle, following the
// five-priority order (spec.md §4.3). A QueryStageComplete marker advances
// the owning node's stage inline rather than going out over the wire.
func (d *Driver) pump(ctx context.Context) {
	for {
		d.sendMu.Lock()
		if d.engine.InFlight() {
			d.sendMu.Unlock()
			return
		}
		_, item, ok := d.queues.Pop()
		if !ok {
			d.sendMu.Unlock()
			return
		}
		d.sendMu.Unlock()

		if item.IsQueryStageComplete {
			d.advanceNodeStage(item.NodeID, node.Stage(item.Stage))
			continue
		}
		if item.Message == nil {
			continue
		}
		if d.armAndWrite(item.Message) {
			return
		}
		// Arm failed (write error): loop around and try the next item.
	}
}

// armAndWrite starts a transaction for msg and writes its wire buffer.
// Returns true if a transaction is now outstanding (caller should stop
// pumping and wait for its completion/timeout).
func (d *Driver) armAndWrite(msg *message.Message) bool {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	err := d.engine.Arm(msg, time.Now(), func(wire []byte) error {
		return d.transport.Write(wire)
	})
	if err != nil {
		d.log.WithError(err).WithField("node", msg.TargetNodeID).Warn("failed to write message")
		d.finishWaiter(msg, err)
		return false
	}
	if msg.TargetNodeID == 0xff {
		d.stats.IncControllerWriteCnt()
	} else {
		d.stats.IncNodeWriteCnt(msg.TargetNodeID)
	}
	return true
}

// handleRetryTimeout re-sends or drops the in-flight message once its
// retry deadline elapses (spec.md §4.2 step 5), redirecting a dropped
// message onto its target's sleeping buffer if that node is now asleep.
func (d *Driver) handleRetryTimeout(ctx context.Context) {
	d.sendMu.Lock()
	result, err := d.engine.OnTimeout(time.Now(), func(wire []byte) error {
		return d.transport.Write(wire)
	})
	d.sendMu.Unlock()

	if err != nil {
		d.log.WithError(err).Warn("failed to retry message")
		return
	}
	if result.Dropped {
		d.onTransactionDropped(result.Message)
	}
}
