// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	associationCommandSet             uint8 = 0x01
	associationCommandGet             uint8 = 0x02
	associationCommandReport          uint8 = 0x03
	associationCommandRemove          uint8 = 0x04
	associationCommandGroupingsGet    uint8 = 0x05
	associationCommandGroupingsReport uint8 = 0x06
)

// Association handles COMMAND_CLASS_ASSOCIATION, queried once per node at
// StageAssociations: first the number of supported groups, then group 1's
// members (spec.md §4.4).
type Association struct {
	nodeID uint8
	once   stageOnce

	mu       sync.RWMutex
	groups   uint8
	members  map[uint8][]uint8
}

// NewAssociation returns a handler for nodeID.
func NewAssociation(nodeID uint8) *Association {
	a := &Association{nodeID: nodeID, members: make(map[uint8][]uint8)}
	a.once = stageOnce{stage: node.StageAssociations, request: a.buildRequest}
	return a
}

func (a *Association) buildRequest() []*message.Message {
	return []*message.Message{
		query(a.nodeID, zwmsg.CommandClassAssociation, []uint8{associationCommandGroupingsGet}),
		query(a.nodeID, zwmsg.CommandClassAssociation, []uint8{associationCommandGet, 1}),
	}
}

// ClassID implements node.CommandClassHandler.
func (a *Association) ClassID() uint8 { return zwmsg.CommandClassAssociation }

// HandleIncoming implements node.CommandClassHandler.
func (a *Association) HandleIncoming(commandID uint8, data []uint8) {
	switch commandID {
	case associationCommandGroupingsReport:
		if len(data) != 1 {
			return
		}
		a.mu.Lock()
		a.groups = data[0]
		a.mu.Unlock()
		a.once.markReceived()
	case associationCommandReport:
		if len(data) < 3 {
			return
		}
		group := data[0]
		members := append([]uint8{}, data[3:]...)
		a.mu.Lock()
		a.members[group] = members
		a.mu.Unlock()
	}
}

// AdvanceQuery implements node.CommandClassHandler.
func (a *Association) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return a.once.advance(stage)
}

// RequestState implements node.CommandClassHandler.
func (a *Association) RequestState(nodeID uint8) []*message.Message { return nil }

// Add associates nodes with group on the target node.
func (a *Association) Add(group uint8, nodes []uint8) *message.Message {
	payload := append([]uint8{associationCommandSet, group}, nodes...)
	return set(a.nodeID, zwmsg.CommandClassAssociation, payload, 0)
}

// Remove disassociates nodes from group on the target node; an empty nodes
// slice removes every member of group (spec.md §3 leaves the exact removal
// semantics to the command class, matching Z-Wave's own Remove command).
func (a *Association) Remove(group uint8, nodes []uint8) *message.Message {
	payload := append([]uint8{associationCommandRemove, group}, nodes...)
	return set(a.nodeID, zwmsg.CommandClassAssociation, payload, 0)
}

// RequestGroup builds a Get for a specific group's membership.
func (a *Association) RequestGroup(group uint8) *message.Message {
	return query(a.nodeID, zwmsg.CommandClassAssociation, []uint8{associationCommandGet, group})
}

// Groups returns the supported group count and whether it has been
// reported yet.
func (a *Association) Groups() (uint8, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.groups, a.once.received()
}

// Members returns the last-known membership of group.
func (a *Association) Members(group uint8) []uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.members[group]
}

// Serialize implements node.CommandClassHandler.
func (a *Association) Serialize() map[string]string {
	if !a.once.received() {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]string{"groups": itoa8(a.groups)}
}

// Deserialize implements node.CommandClassHandler.
func (a *Association) Deserialize(fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.groups = atoi8(fields["groups"])
	a.once.markReceived()
}
