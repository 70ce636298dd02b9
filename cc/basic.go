// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	basicCommandSet    uint8 = 0x01
	basicCommandGet    uint8 = 0x02
	basicCommandReport uint8 = 0x03
)

// Basic handles COMMAND_CLASS_BASIC, the fallback value most devices
// support. It has no dedicated query stage of its own — its value is
// polled like any other dynamic value (spec.md §4.6) — and is frequently
// updated by unsolicited reports pushed on state change.
type Basic struct {
	nodeID uint8

	mu    sync.RWMutex
	value uint8
	known bool
}

// NewBasic returns a handler for nodeID.
func NewBasic(nodeID uint8) *Basic {
	return &Basic{nodeID: nodeID}
}

// ClassID implements node.CommandClassHandler.
func (b *Basic) ClassID() uint8 { return zwmsg.CommandClassBasic }

// HandleIncoming implements node.CommandClassHandler.
func (b *Basic) HandleIncoming(commandID uint8, data []uint8) {
	if commandID != basicCommandReport || len(data) != 1 {
		return
	}
	b.mu.Lock()
	b.value = data[0]
	b.known = true
	b.mu.Unlock()
}

// AdvanceQuery implements node.CommandClassHandler; Basic never gates a
// query stage.
func (b *Basic) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return nil, false
}

// RequestState implements node.CommandClassHandler.
func (b *Basic) RequestState(nodeID uint8) []*message.Message {
	return []*message.Message{query(nodeID, zwmsg.CommandClassBasic, []uint8{basicCommandGet})}
}

// Set builds a Basic Set message for value.
func (b *Basic) Set(value uint8, callbackID uint8) *message.Message {
	return set(b.nodeID, zwmsg.CommandClassBasic, []uint8{basicCommandSet, value}, callbackID)
}

// Value returns the last-known reported value.
func (b *Basic) Value() (uint8, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value, b.known
}

// Serialize implements node.CommandClassHandler.
func (b *Basic) Serialize() map[string]string {
	value, known := b.Value()
	if !known {
		return nil
	}
	return map[string]string{"value": itoa8(value)}
}

// Deserialize implements node.CommandClassHandler.
func (b *Basic) Deserialize(fields map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = atoi8(fields["value"])
	b.known = true
}
