// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	namingCommandNameSet     uint8 = 0x01
	namingCommandNameGet     uint8 = 0x02
	namingCommandNameReport  uint8 = 0x03
	namingCommandLocSet      uint8 = 0x04
	namingCommandLocGet      uint8 = 0x05
	namingCommandLocReport   uint8 = 0x06
	namingEncodingASCII      uint8 = 0x00
)

// Naming handles COMMAND_CLASS_NODE_NAMING_AND_LOCATION, queried once per
// node at StageStatic (spec.md §4.4). Both name and location must be
// received before AdvanceQuery reports the stage satisfied.
type Naming struct {
	nodeID uint8

	mu               sync.RWMutex
	name, location   string
	haveName, haveLoc bool
}

// NewNaming returns a handler for nodeID.
func NewNaming(nodeID uint8) *Naming {
	return &Naming{nodeID: nodeID}
}

// ClassID implements node.CommandClassHandler.
func (n *Naming) ClassID() uint8 { return zwmsg.CommandClassNodeNaming }

// HandleIncoming implements node.CommandClassHandler.
func (n *Naming) HandleIncoming(commandID uint8, data []uint8) {
	if len(data) < 1 {
		return
	}
	text := string(data[1:])
	n.mu.Lock()
	switch commandID {
	case namingCommandNameReport:
		n.name = text
		n.haveName = true
	case namingCommandLocReport:
		n.location = text
		n.haveLoc = true
	}
	n.mu.Unlock()
}

// AdvanceQuery implements node.CommandClassHandler.
func (n *Naming) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	if stage != node.StageStatic {
		return nil, false
	}
	n.mu.RLock()
	haveName, haveLoc := n.haveName, n.haveLoc
	n.mu.RUnlock()

	var msgs []*message.Message
	if !haveName {
		msgs = append(msgs, query(n.nodeID, zwmsg.CommandClassNodeNaming, []uint8{namingCommandNameGet}))
	}
	if !haveLoc {
		msgs = append(msgs, query(n.nodeID, zwmsg.CommandClassNodeNaming, []uint8{namingCommandLocGet}))
	}
	return msgs, len(msgs) > 0
}

// RequestState implements node.CommandClassHandler.
func (n *Naming) RequestState(nodeID uint8) []*message.Message { return nil }

// SetName builds a Name Set message; only ASCII encoding is supported.
func (n *Naming) SetName(name string, callbackID uint8) *message.Message {
	payload := append([]uint8{namingEncodingASCII}, []uint8(name)...)
	return set(n.nodeID, zwmsg.CommandClassNodeNaming, append([]uint8{namingCommandNameSet}, payload...), callbackID)
}

// SetLocation builds a Location Set message.
func (n *Naming) SetLocation(location string, callbackID uint8) *message.Message {
	payload := append([]uint8{namingEncodingASCII}, []uint8(location)...)
	return set(n.nodeID, zwmsg.CommandClassNodeNaming, append([]uint8{namingCommandLocSet}, payload...), callbackID)
}

// NameAndLocation returns the last-known name and location strings.
func (n *Naming) NameAndLocation() (name, location string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name, n.location
}

// Serialize implements node.CommandClassHandler.
func (n *Naming) Serialize() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.haveName && !n.haveLoc {
		return nil
	}
	return map[string]string{"name": n.name, "location": n.location}
}

// Deserialize implements node.CommandClassHandler.
func (n *Naming) Deserialize(fields map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if name, ok := fields["name"]; ok {
		n.name = name
		n.haveName = true
	}
	if loc, ok := fields["location"]; ok {
		n.location = loc
		n.haveLoc = true
	}
}
