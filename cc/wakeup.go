// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

// WakeUp handles COMMAND_CLASS_WAKE_UP: the interval negotiated at
// StageSession, and the awake/asleep signal the sleeping-redirection logic
// of spec.md §4.3 depends on via node.WakeUpStatus. It never touches a
// node's message buffer itself — that stays the driver's job, coordinated
// through OnAwake — keeping this package free of any dependency on queue.
type WakeUp struct {
	nodeID uint8
	once   stageOnce

	mu           sync.RWMutex
	awake        bool
	interval     uint32
	targetNodeID uint8
	pollRequired bool

	// onAwake, if set, is invoked (outside the handler's own lock) whenever
	// a Wake Up Notification arrives, so the driver can flush the node's
	// sleeping buffer onto the WakeUp queue (spec.md §4.3).
	onAwake func(nodeID uint8)
}

// NewWakeUp returns a handler for nodeID.
func NewWakeUp(nodeID uint8) *WakeUp {
	w := &WakeUp{nodeID: nodeID}
	w.once = stageOnce{stage: node.StageSession, request: w.buildRequest}
	return w
}

// SetOnAwake registers the driver's wake-flush callback.
func (w *WakeUp) SetOnAwake(fn func(nodeID uint8)) {
	w.mu.Lock()
	w.onAwake = fn
	w.mu.Unlock()
}

func (w *WakeUp) buildRequest() []*message.Message {
	return []*message.Message{query(w.nodeID, zwmsg.CommandClassWakeUp, []uint8{zwmsg.WakeUpCommandIntervalGet})}
}

// ClassID implements node.CommandClassHandler.
func (w *WakeUp) ClassID() uint8 { return zwmsg.CommandClassWakeUp }

// HandleIncoming implements node.CommandClassHandler.
func (w *WakeUp) HandleIncoming(commandID uint8, data []uint8) {
	switch commandID {
	case zwmsg.WakeUpCommandIntervalReport:
		if len(data) != 4 {
			return
		}
		w.mu.Lock()
		w.interval = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		w.targetNodeID = data[3]
		w.mu.Unlock()
		w.once.markReceived()
	case zwmsg.WakeUpCommandNotification:
		w.mu.Lock()
		w.awake = true
		fn := w.onAwake
		w.mu.Unlock()
		if fn != nil {
			fn(w.nodeID)
		}
	}
}

// AdvanceQuery implements node.CommandClassHandler.
func (w *WakeUp) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return w.once.advance(stage)
}

// RequestState implements node.CommandClassHandler.
func (w *WakeUp) RequestState(nodeID uint8) []*message.Message { return nil }

// IsAwake implements node.WakeUpStatus.
func (w *WakeUp) IsAwake() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.awake
}

// MarkAsleep is called once the driver has sent (or is about to send) a
// WakeUp No More Information notice, or when a fresh transaction failure
// against this node reveals it went back to sleep (spec.md §4.3).
func (w *WakeUp) MarkAsleep() {
	w.mu.Lock()
	w.awake = false
	w.mu.Unlock()
}

// SetInterval builds an Interval Set targeting the controller as the
// notification recipient.
func (w *WakeUp) SetInterval(seconds uint32, controllerNodeID uint8, callbackID uint8) *message.Message {
	payload := []uint8{
		zwmsg.WakeUpCommandIntervalSet,
		uint8(seconds >> 16), uint8(seconds >> 8), uint8(seconds),
		controllerNodeID,
	}
	return set(w.nodeID, zwmsg.CommandClassWakeUp, payload, callbackID)
}

// NoMoreInformation builds the notice that lets a sleeping node return to
// sleep; the transaction engine and sleeping buffer both special-case this
// message (spec.md §4.3, message.IsWakeUpNoMoreInformation).
func (w *WakeUp) NoMoreInformation(callbackID uint8) *message.Message {
	return set(w.nodeID, zwmsg.CommandClassWakeUp, []uint8{zwmsg.WakeUpCommandNoMoreInfo}, callbackID)
}

// Interval returns the last-known reported wake-up interval, in seconds.
func (w *WakeUp) Interval() (seconds uint32, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.interval, w.once.received()
}

// SetPollRequired flags that a poll for this node was deferred while it
// was asleep, to be issued as soon as it wakes (spec.md §4.6).
func (w *WakeUp) SetPollRequired(v bool) {
	w.mu.Lock()
	w.pollRequired = v
	w.mu.Unlock()
}

// PollRequired reports and clears the deferred-poll flag.
func (w *WakeUp) PollRequired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.pollRequired
	w.pollRequired = false
	return v
}

// Serialize implements node.CommandClassHandler.
func (w *WakeUp) Serialize() map[string]string {
	if !w.once.received() {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return map[string]string{
		"interval":  itoa32(int32(w.interval)),
		"target_id": itoa8(w.targetNodeID),
	}
}

// Deserialize implements node.CommandClassHandler.
func (w *WakeUp) Deserialize(fields map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interval = uint32(atoi32(fields["interval"]))
	w.targetNodeID = atoi8(fields["target_id"])
	w.once.markReceived()
}
