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
	manufacturerSpecificCommandGet    uint8 = 0x04
	manufacturerSpecificCommandReport uint8 = 0x05
)

// ManufacturerSpecific handles COMMAND_CLASS_MANUFACTURER_SPECIFIC, queried
// once per node at StageManufacturerSpecific (spec.md §4.4).
type ManufacturerSpecific struct {
	nodeID uint8
	once   stageOnce

	mu                                              sync.RWMutex
	manufacturerID, productType, productID          uint16
}

// NewManufacturerSpecific returns a handler for nodeID.
func NewManufacturerSpecific(nodeID uint8) *ManufacturerSpecific {
	m := &ManufacturerSpecific{nodeID: nodeID}
	m.once = stageOnce{stage: node.StageManufacturerSpecific, request: m.buildRequest}
	return m
}

func (m *ManufacturerSpecific) buildRequest() []*message.Message {
	return []*message.Message{query(m.nodeID, zwmsg.CommandClassManufacturerSpecific, []uint8{manufacturerSpecificCommandGet})}
}

// ClassID implements node.CommandClassHandler.
func (m *ManufacturerSpecific) ClassID() uint8 { return zwmsg.CommandClassManufacturerSpecific }

// HandleIncoming implements node.CommandClassHandler.
func (m *ManufacturerSpecific) HandleIncoming(commandID uint8, data []uint8) {
	if commandID != manufacturerSpecificCommandReport || len(data) != 6 {
		return
	}
	m.mu.Lock()
	m.manufacturerID = binary.BigEndian.Uint16(data[0:2])
	m.productType = binary.BigEndian.Uint16(data[2:4])
	m.productID = binary.BigEndian.Uint16(data[4:6])
	m.mu.Unlock()
	m.once.markReceived()
}

// AdvanceQuery implements node.CommandClassHandler.
func (m *ManufacturerSpecific) AdvanceQuery(nodeID uint8, stage node.Stage) ([]*message.Message, bool) {
	return m.once.advance(stage)
}

// RequestState implements node.CommandClassHandler; manufacturer data is
// query-stage only, never re-requested as part of a dynamic refresh.
func (m *ManufacturerSpecific) RequestState(nodeID uint8) []*message.Message { return nil }

// Report returns the decoded manufacturer/product triple, and whether the
// report has arrived yet.
func (m *ManufacturerSpecific) Report() (manufacturerID, productType, productID uint16, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.manufacturerID, m.productType, m.productID, m.once.received()
}

// Serialize implements node.CommandClassHandler.
func (m *ManufacturerSpecific) Serialize() map[string]string {
	if !m.once.received() {
		return nil
	}
	manufacturerID, productType, productID, _ := m.Report()
	return map[string]string{
		"manufacturer_id": itoa16(manufacturerID),
		"product_type":    itoa16(productType),
		"product_id":      itoa16(productID),
	}
}

// Deserialize implements node.CommandClassHandler.
func (m *ManufacturerSpecific) Deserialize(fields map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manufacturerID = atoi16(fields["manufacturer_id"])
	m.productType = atoi16(fields["product_type"])
	m.productID = atoi16(fields["product_id"])
	m.once.markReceived()
}
