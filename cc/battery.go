// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	batteryCommandGet    uint8 = 0x02
	batteryCommandReport uint8 = 0x03
)

// Battery handles COMMAND_CLASS_BATTERY. Battery level is a dynamic value
// (spec.md §4.4's StageDynamic), re-requestable at any time via
// RequestState rather than only once per query stage.
type Battery struct {
	nodeID uint8
	once   stageOnce

	mu     sync.RWMutex
	level  uint8
	isLow  bool
}

// NewBattery returns a handler for nodeID.
func NewBattery(nodeID uint8) *Battery {
	b := &Battery{nodeID: nodeID}
	b.once = stageOnce{stage: node.StageDynamic, request: b.buildRequest}
	return b
}

func (b *Battery) buildRequest() []*message.Message {
	return []*message.Message{query(b.nodeID, zwmsg.CommandClassBattery, []uint8{batteryCommandGet})}
}

// ClassID implements node.CommandClassHandler.
func (b *Battery) ClassID() uint8 { return zwmsg.CommandClassBattery }

// HandleIncoming implements node.CommandClassHandler.
func (b *Battery) HandleIncoming(commandID uint8, data []uint8) {
	if commandID != batteryCommandReport || len(data) != 1 {
		return
	}
	b.mu.Lock()
	b.isLow = data[0] == 0xff
	if b.isLow {
		b.level = 0
	} else {
		b.level = data[0]
	}
	b.mu.Unlock()
	b.once.markReceived()
}

// AdvanceQuery implements node.CommandClassHandler.
func (b *Battery) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return b.once.advance(stage)
}

// RequestState implements node.CommandClassHandler: battery is a poll-worthy
// dynamic value, re-requested on demand by the poller (spec.md §4.6).
func (b *Battery) RequestState(nodeID uint8) []*message.Message {
	return []*message.Message{query(nodeID, zwmsg.CommandClassBattery, []uint8{batteryCommandGet})}
}

// Report returns the last-known level (0-100) and low-battery flag.
func (b *Battery) Report() (level uint8, isLow bool, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.level, b.isLow, b.once.received()
}

// Serialize implements node.CommandClassHandler.
func (b *Battery) Serialize() map[string]string {
	if !b.once.received() {
		return nil
	}
	level, isLow, _ := b.Report()
	low := "0"
	if isLow {
		low = "1"
	}
	return map[string]string{"level": itoa8(level), "low": low}
}

// Deserialize implements node.CommandClassHandler.
func (b *Battery) Deserialize(fields map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = atoi8(fields["level"])
	b.isLow = fields["low"] == "1"
	b.once.markReceived()
}
