// SPDX-License-Identifier: Apache-2.0
package driver

import "sync"

// NodeStats are the per-node counters of spec.md §6.
type NodeStats struct {
	ReadCnt  uint64
	WriteCnt uint64
}

// Statistics implements txn.Stats and extends it with every other counter
// spec.md §6 names, aggregated under one mutex. Grounded on the teacher's
// controller.Controller, which counted nothing beyond its retry constants —
// the full counter list is new, built in the same "one mutex per concern"
// idiom the rest of this package uses.
type Statistics struct {
	mu sync.Mutex

	SOFCnt             uint64
	ACKWaiting         uint64
	ReadAborts         uint64
	BadChecksum        uint64
	ReadCnt            uint64
	WriteCnt           uint64
	CANCnt             uint64
	NAKCnt             uint64
	ACKCnt             uint64
	OOFCnt             uint64
	Dropped            uint64
	Retries            uint64
	ControllerReadCnt  uint64
	ControllerWriteCnt uint64

	nodes map[uint8]*NodeStats
}

// NewStatistics returns a zeroed Statistics.
func NewStatistics() *Statistics {
	return &Statistics{nodes: make(map[uint8]*NodeStats)}
}

func (s *Statistics) node(nodeID uint8) *NodeStats {
	n, ok := s.nodes[nodeID]
	if !ok {
		n = &NodeStats{}
		s.nodes[nodeID] = n
	}
	return n
}

// NodeSnapshot returns a copy of nodeID's counters.
func (s *Statistics) NodeSnapshot(nodeID uint8) NodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[nodeID]; ok {
		return *n
	}
	return NodeStats{}
}

// Snapshot returns a copy of the aggregate counters, excluding per-node
// detail (use NodeSnapshot for that).
func (s *Statistics) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.nodes = nil
	return cp
}

func (s *Statistics) IncSOFCnt() {
	s.mu.Lock()
	s.SOFCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncACKWaiting() {
	s.mu.Lock()
	s.ACKWaiting++
	s.mu.Unlock()
}

func (s *Statistics) IncReadAborts() {
	s.mu.Lock()
	s.ReadAborts++
	s.mu.Unlock()
}

func (s *Statistics) IncBadChecksum() {
	s.mu.Lock()
	s.BadChecksum++
	s.mu.Unlock()
}

func (s *Statistics) IncReadCnt() {
	s.mu.Lock()
	s.ReadCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncOOFCnt() {
	s.mu.Lock()
	s.OOFCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncControllerReadCnt() {
	s.mu.Lock()
	s.ControllerReadCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncControllerWriteCnt() {
	s.mu.Lock()
	s.ControllerWriteCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncNodeReadCnt(nodeID uint8) {
	s.mu.Lock()
	s.node(nodeID).ReadCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncNodeWriteCnt(nodeID uint8) {
	s.mu.Lock()
	s.node(nodeID).WriteCnt++
	s.mu.Unlock()
}

// The remaining methods implement txn.Stats.

func (s *Statistics) IncRetries() {
	s.mu.Lock()
	s.Retries++
	s.mu.Unlock()
}

func (s *Statistics) IncDropped() {
	s.mu.Lock()
	s.Dropped++
	s.mu.Unlock()
}

func (s *Statistics) IncWriteCnt() {
	s.mu.Lock()
	s.WriteCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncACKCnt() {
	s.mu.Lock()
	s.ACKCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncNAKCnt() {
	s.mu.Lock()
	s.NAKCnt++
	s.mu.Unlock()
}

func (s *Statistics) IncCANCnt() {
	s.mu.Lock()
	s.CANCnt++
	s.mu.Unlock()
}
