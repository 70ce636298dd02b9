// SPDX-License-Identifier: Apache-2.0
// Package cc implements the command-class handlers of spec.md §3's "set of
// instantiated command-class handlers keyed by class id": small,
// independent types that each satisfy node.CommandClassHandler, decoding
// APPLICATION_COMMAND reports for their class and building the outgoing
// SendData messages a node's query-stage advance needs. Handlers depend on
// node, never the reverse, keeping node free of any particular class's
// wire format.
package cc

import (
	"strconv"
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/zwmsg"
)

// itoa16/atoi16 round-trip a uint16 field through the string-keyed maps
// Serialize/Deserialize use, matching the persisted snapshot's text
// attributes (spec.md §7).
func itoa16(v uint16) string { return strconv.FormatUint(uint64(v), 10) }

func atoi16(s string) uint16 {
	v, _ := strconv.ParseUint(s, 10, 16)
	return uint16(v)
}

func itoa8(v uint8) string { return strconv.FormatUint(uint64(v), 10) }

func atoi8(s string) uint8 {
	v, _ := strconv.ParseUint(s, 10, 8)
	return uint8(v)
}

func itoa32(v int32) string { return strconv.FormatInt(int64(v), 10) }

func atoi32(s string) int32 {
	v, _ := strconv.ParseInt(s, 10, 32)
	return int32(v)
}

// query builds a SendData message that expects its answer as an unsolicited
// APPLICATION_COMMAND from nodeID/classID, the shape every Get/Report
// exchange in this package uses.
func query(nodeID, classID uint8, payload []uint8) *message.Message {
	m := message.NewSendData(nodeID, classID, payload, zwmsg.DefaultTransmitOptions, 0)
	return m.WithApplicationCommandExpectation(nodeID, classID)
}

// set builds a fire-and-forget SendData message (no report expected beyond
// the transmit-complete callback already wired into NewSendData).
func set(nodeID, classID uint8, payload []uint8, callbackID uint8) *message.Message {
	return message.NewSendData(nodeID, classID, payload, zwmsg.DefaultTransmitOptions, callbackID)
}

// stageOnce answers AdvanceQuery for a handler that has exactly one report
// to wait for at a single stage: applicable while at that stage and the
// report hasn't arrived yet.
type stageOnce struct {
	mu      sync.RWMutex
	got     bool
	stage   node.Stage
	request func() []*message.Message
}

func (s *stageOnce) advance(stage node.Stage) ([]*message.Message, bool) {
	s.mu.RLock()
	got, want := s.got, s.stage
	s.mu.RUnlock()
	if stage != want || got {
		return nil, false
	}
	return s.request(), true
}

func (s *stageOnce) markReceived() {
	s.mu.Lock()
	s.got = true
	s.mu.Unlock()
}

func (s *stageOnce) received() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.got
}
