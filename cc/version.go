// SPDX-License-Identifier: Apache-2.0
package cc

import (
	"encoding/binary"
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

const (
	versionCommandGet             uint8 = 0x11
	versionCommandReport          uint8 = 0x12
	versionCommandClassGet        uint8 = 0x13
	versionCommandClassReport     uint8 = 0x14
)

// Version handles COMMAND_CLASS_VERSION, queried once per node at
// StageVersions (spec.md §4.4).
type Version struct {
	nodeID uint8
	once   stageOnce

	mu                              sync.RWMutex
	library                         uint8
	protocol, application           uint16
	classVersions                   map[uint8]uint8
}

// NewVersion returns a handler for nodeID.
func NewVersion(nodeID uint8) *Version {
	v := &Version{nodeID: nodeID, classVersions: make(map[uint8]uint8)}
	v.once = stageOnce{stage: node.StageVersions, request: v.buildRequest}
	return v
}

func (v *Version) buildRequest() []*message.Message {
	return []*message.Message{query(v.nodeID, zwmsg.CommandClassVersion, []uint8{versionCommandGet})}
}

// ClassID implements node.CommandClassHandler.
func (v *Version) ClassID() uint8 { return zwmsg.CommandClassVersion }

// HandleIncoming implements node.CommandClassHandler.
func (v *Version) HandleIncoming(commandID uint8, data []uint8) {
	switch commandID {
	case versionCommandReport:
		if len(data) != 5 {
			return
		}
		v.mu.Lock()
		v.library = data[0]
		v.protocol = binary.BigEndian.Uint16(data[1:3])
		v.application = binary.BigEndian.Uint16(data[3:5])
		v.mu.Unlock()
		v.once.markReceived()
	case versionCommandClassReport:
		if len(data) != 2 {
			return
		}
		v.mu.Lock()
		v.classVersions[data[0]] = data[1]
		v.mu.Unlock()
	}
}

// AdvanceQuery implements node.CommandClassHandler.
func (v *Version) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return v.once.advance(stage)
}

// RequestState implements node.CommandClassHandler.
func (v *Version) RequestState(nodeID uint8) []*message.Message { return nil }

// RequestCommandClassVersion builds a request for a specific command
// class's version, for use once the node's own version report is in hand.
func (v *Version) RequestCommandClassVersion(commandClass uint8) *message.Message {
	return query(v.nodeID, zwmsg.CommandClassVersion, []uint8{versionCommandClassGet, commandClass})
}

// Report returns the decoded library/protocol/application versions.
func (v *Version) Report() (library uint8, protocol, application uint16, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.library, v.protocol, v.application, v.once.received()
}

// CommandClassVersion returns the previously-reported version of
// commandClass, or 0 if unknown.
func (v *Version) CommandClassVersion(commandClass uint8) uint8 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.classVersions[commandClass]
}

// Serialize implements node.CommandClassHandler.
func (v *Version) Serialize() map[string]string {
	if !v.once.received() {
		return nil
	}
	library, protocol, application, _ := v.Report()
	return map[string]string{
		"library":     itoa8(library),
		"protocol":    itoa16(protocol),
		"application": itoa16(application),
	}
}

// Deserialize implements node.CommandClassHandler.
func (v *Version) Deserialize(fields map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.library = atoi8(fields["library"])
	v.protocol = atoi16(fields["protocol"])
	v.application = atoi16(fields["application"])
	v.once.markReceived()
}
