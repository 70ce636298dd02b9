// SPDX-License-Identifier: Apache-2.0
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shimmeringbee/retry"

	"github.com/gozwave/core/cc"
	"github.com/gozwave/core/frame"
	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/notify"
	"github.com/gozwave/core/persist"
	"github.com/gozwave/core/queue"
	"github.com/gozwave/core/zwmsg"
)

// errDropped is returned by a blocking send when the transaction engine
// exhausts its retry budget for that message.
var errDropped = errors.New("driver: message dropped after max retries")

// errNoRoute is returned when a SEND_DATA callback reports NO_ROUTE: the
// destination is permanently unreachable, so the message is dropped rather
// than redirected or retried (spec.md §7).
var errNoRoute = errors.New("driver: no route to destination node")

// errNoAck is returned when a SEND_DATA callback reports NO_ACK against a
// node that isn't sleeping-capable, so the silence can't be explained by
// spec.md §4.3's sleeping-redirection rule.
var errNoAck = errors.New("driver: destination did not acknowledge transmission")

// errSendFailed is returned when a SEND_DATA callback reports FAIL or
// NOT_IDLE: a transient transmit failure the caller may choose to retry.
var errSendFailed = errors.New("driver: transmission failed")

// errControllerCommandActive is returned by BeginControllerCommand when
// another controller command is already running.
var errControllerCommandActive = errors.New("driver: a controller command is already active")

// ccState tracks the single outstanding controller-command exchange
// (AddNodeToNetwork, RemoveNodeFromNetwork, RemoveFailedNode, ...),
// guarding the cancellation rule of spec.md §5: a stop frame for the
// inclusion/exclusion functions, a passive wait for everything else.
type ccState struct {
	mu       sync.Mutex
	active   bool
	function uint8
}

// SendMsg enqueues msg at Send priority, redirecting to the target node's
// sleeping buffer instead if it is currently unreachable (spec.md §4.3's
// redirect-on-enqueue rule).
func (d *Driver) SendMsg(msg *message.Message) {
	d.enqueueMessages(queue.Send, []*message.Message{msg})
}

// enqueueMessages pushes msgs at priority p, except any addressed to a
// node currently asleep, which go straight to that node's buffer.
func (d *Driver) enqueueMessages(p queue.Priority, msgs []*message.Message) {
	for _, m := range msgs {
		if m.TargetNodeID != 0xff {
			if n := d.nodes.Get(m.TargetNodeID); n != nil && n.IsAsleep() {
				n.BufferAppend(queue.Item{Message: m})
				continue
			}
		}
		d.sendMu.Lock()
		d.queues.Push(p, queue.Item{Message: m})
		d.sendMu.Unlock()
	}
}

// sendAndWait enqueues msg and blocks until the transaction engine reports
// it complete or dropped, or ctx is done.
func (d *Driver) sendAndWait(ctx context.Context, msg *message.Message, p queue.Priority) error {
	done := make(chan error, 1)
	d.sendMu.Lock()
	d.waiters[msg] = done
	d.sendMu.Unlock()

	d.enqueueMessages(p, []*message.Message{msg})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finishWaiter notifies and discards the blocking waiter registered for
// msg, if any.
func (d *Driver) finishWaiter(msg *message.Message, err error) {
	d.sendMu.Lock()
	ch, ok := d.waiters[msg]
	if ok {
		delete(d.waiters, msg)
	}
	d.sendMu.Unlock()
	if ok {
		ch <- err
	}
}

// EnablePoll arms periodic polling of id (spec.md §4.6).
func (d *Driver) EnablePoll(id notify.ValueID) { d.poller.Enable(id) }

// DisablePoll removes id from the poll rotation.
func (d *Driver) DisablePoll(id notify.ValueID) { d.poller.Disable(id) }

// BeginControllerCommand starts a controller-command exchange (e.g.
// AddNodeToNetwork). Only one may be active at a time.
func (d *Driver) BeginControllerCommand(ctx context.Context, function uint8, payload []uint8) error {
	d.cc.mu.Lock()
	if d.cc.active {
		d.cc.mu.Unlock()
		return errControllerCommandActive
	}
	d.cc.active = true
	d.cc.function = function
	d.cc.mu.Unlock()

	msg := message.NewControllerRequest(function)
	msg.Payload = payload
	if err := d.sendAndWait(ctx, msg, queue.Command); err != nil {
		d.cc.mu.Lock()
		d.cc.active = false
		d.cc.mu.Unlock()
		return err
	}
	return nil
}

// CancelControllerCommand aborts the active controller command, per
// spec.md §5: AddNodeToNetwork/RemoveNodeFromNetwork accept a stop-mode
// frame; every other controller command has no abort primitive and is left
// to reach its own negative outcome.
func (d *Driver) CancelControllerCommand() error {
	d.cc.mu.Lock()
	active, function := d.cc.active, d.cc.function
	d.cc.mu.Unlock()
	if !active {
		return nil
	}

	switch function {
	case zwmsg.AddNodeToNetwork:
		d.SendMsg(withPayload(message.NewControllerRequest(zwmsg.AddNodeToNetwork), []uint8{zwmsg.AddNodeModeStop}))
	case zwmsg.RemoveNodeFromNetwork:
		d.SendMsg(withPayload(message.NewControllerRequest(zwmsg.RemoveNodeFromNetwork), []uint8{zwmsg.RemoveNodeModeStop}))
	default:
		d.log.WithField("function", fmt.Sprintf("0x%02x", function)).
			Debug("no stop frame for this controller command; awaiting its own outcome")
		return nil
	}

	d.cc.mu.Lock()
	d.cc.active = false
	d.cc.mu.Unlock()
	return nil
}

// handleControllerCommandFrame clears ccState once the active command's
// function reaches a terminal outcome: immediately for single-round-trip
// commands, or on AddNodeStatusDone/Failed for the multi-step
// inclusion/exclusion functions.
func (d *Driver) handleControllerCommandFrame(f *frame.Frame) {
	d.cc.mu.Lock()
	defer d.cc.mu.Unlock()

	if !d.cc.active || f.Function != d.cc.function {
		return
	}

	switch f.Function {
	case zwmsg.AddNodeToNetwork, zwmsg.RemoveNodeFromNetwork:
		if len(f.Body) < 1 || !zwmsg.IsTerminalControllerCommandStatus(f.Body[0]) {
			return
		}
	}
	d.cc.active = false
}

// runInitSequence performs the controller handshake of spec.md §6:
// GetVersion, MemoryGetID, GetControllerCapabilities,
// SerialAPIGetCapabilities and GetSUCNodeID, each retried a bounded number
// of times via shimmeringbee/retry to ride out an early dropped exchange
// while the link is still settling.
func (d *Driver) runInitSequence(ctx context.Context) error {
	steps := []uint8{
		zwmsg.GetVersion,
		zwmsg.MemoryGetID,
		zwmsg.GetControllerCapabilities,
		zwmsg.SerialAPIGetCapabilities,
		zwmsg.GetSUCNodeID,
	}
	for _, function := range steps {
		function := function
		err := retry.Retry(ctx, 5*time.Second, 3, func(ctx context.Context) error {
			return d.sendAndWait(ctx, message.NewControllerRequest(function), queue.Command)
		})
		if err != nil {
			return fmt.Errorf("driver: init step 0x%02x: %w", function, err)
		}
	}
	return nil
}

// requestInitData issues SERIAL_API_GET_INIT_DATA; its response is handled
// by captureControllerResponse, which reconciles the node table.
func (d *Driver) requestInitData(ctx context.Context) error {
	return retry.Retry(ctx, 5*time.Second, 3, func(ctx context.Context) error {
		return d.sendAndWait(ctx, message.NewControllerRequest(zwmsg.SerialAPIGetInitData), queue.Command)
	})
}

// loadPersisted restores the snapshot and button-map documents for the
// home id discovered by runInitSequence, if UserPath holds one matching
// this controller (spec.md §4.5).
func (d *Driver) loadPersisted() {
	homeIDStr := fmt.Sprintf("0x%08x", d.homeID)
	path := persist.Path(d.opts.UserPath, d.homeID)

	doc, ok, err := persist.Load(path, homeIDStr, d.controllerNodeID)
	if err != nil {
		d.log.WithError(err).Warn("failed to load persisted snapshot")
	} else if ok {
		for id, snap := range doc.Nodes {
			n, events := d.nodes.LoadFromSnapshot(id)
			n.RestoreFromSnapshot(snap)
			n.SetStage(snap.Stage)
			for classID, fields := range doc.CommandClasses[id] {
				h := newCommandClassHandler(classID, id)
				if h == nil {
					continue
				}
				h.Deserialize(fields)
				if w, isWakeUp := h.(*cc.WakeUp); isWakeUp {
					w.SetOnAwake(d.onNodeAwake)
				}
				n.RegisterCommandClass(h)
			}
			for _, ev := range events {
				d.translateTableEvent(ev)
			}
		}
	}

	if buttons, err := persist.LoadButtons(persist.ButtonsPath(d.opts.UserPath)); err != nil {
		d.log.WithError(err).Warn("failed to load button map")
	} else {
		d.buttons = buttons
	}
}

// save writes the current snapshot and button-map documents.
func (d *Driver) save() {
	doc := &persist.Doc{
		HomeID:                 fmt.Sprintf("0x%08x", d.homeID),
		ControllerNodeID:       d.controllerNodeID,
		ControllerCapabilities: fmt.Sprintf("0x%02x", d.controllerCapabilities),
		PollInterval:           int(d.opts.PollInterval / time.Second),
		Nodes:                  make(map[uint8]node.Snapshot),
		CommandClasses:         make(map[uint8]map[uint8]map[string]string),
	}

	for _, n := range d.nodes.All() {
		doc.Nodes[n.ID] = n.Snapshot()
		classes := make(map[uint8]map[string]string)
		for _, h := range n.Handlers() {
			if fields := h.Serialize(); fields != nil {
				classes[h.ClassID()] = fields
			}
		}
		doc.CommandClasses[n.ID] = classes
	}

	if err := persist.Save(persist.Path(d.opts.UserPath, d.homeID), doc); err != nil {
		d.log.WithError(err).Warn("failed to save snapshot")
	}
	if err := persist.SaveButtons(persist.ButtonsPath(d.opts.UserPath), d.buttons); err != nil {
		d.log.WithError(err).Warn("failed to save button map")
	}
}

// drainOnExit abandons any in-flight transaction, per spec.md §5: "on
// shutdown, in-flight transactions are abandoned, not retried."
func (d *Driver) drainOnExit() {
	d.sendMu.Lock()
	msg := d.engine.Abandon()
	d.sendMu.Unlock()
	if msg != nil {
		d.finishWaiter(msg, errors.New("driver: stopped"))
	}
}

// withPayload is a small chaining helper for building a one-off controller
// request whose payload is known up front.
func withPayload(m *message.Message, payload []uint8) *message.Message {
	m.Payload = payload
	return m
}
