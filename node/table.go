// SPDX-License-Identifier: Apache-2.0
package node

import "sync"

// EventKind distinguishes the notification-worthy things that can happen
// to the node table as a side effect of a mutation (spec.md §4.4/§4.6).
// Table itself has no notion of a notification bus; it hands back Events
// and lets the driver translate them.
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeNew
	EventNodeRemoved
	EventAwakeNodesQueried
	EventAllNodesQueried
)

// Event pairs an EventKind with the node id it concerns; NodeID is unused
// for the two table-wide completion events.
type Event struct {
	Kind   EventKind
	NodeID uint8
}

// Table is the Node Manager's registry of every known node, keyed by the
// 1..232 node id space. Table performs its own locking, independent of any
// individual Node's mutex, since table membership changes (add/remove) are
// a different concern from a node's internal state.
type Table struct {
	mu   sync.RWMutex
	nodes map[uint8]*Node

	// fromSnapshot marks ids whose Node was created by LoadFromSnapshot and
	// has not yet been confirmed present in a SERIAL_API_GET_INIT_DATA
	// bitmap; such nodes reset to StageAssociations on first confirmation
	// (spec.md §4.4 edge case), since session-ephemeral data loaded from
	// disk cannot be trusted to still be current.
	fromSnapshot map[uint8]bool

	allNodesQueried   bool
	awakeNodesQueried bool
}

// NewTable returns an empty node table.
func NewTable() *Table {
	return &Table{
		nodes:        make(map[uint8]*Node),
		fromSnapshot: make(map[uint8]bool),
	}
}

// Get returns the node with the given id, or nil if unknown.
func (t *Table) Get(id uint8) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// All returns every known node, in ascending id order.
func (t *Table) All() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for id := uint8(1); ; id++ {
		if n, ok := t.nodes[id]; ok {
			out = append(out, n)
		}
		if id == 232 {
			break
		}
	}
	return out
}

// Len returns the number of known nodes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// LoadFromSnapshot creates a node the way persisted-snapshot load does: the
// node's stage is left to the caller (typically StageComplete, since only
// fully-queried nodes are persisted) and it is flagged for a stage reset on
// its first init-data confirmation. Emits NodeAdded, per spec.md §4.4's
// "Creation always emits a NodeAdded notification" — snapshot load never
// emits NodeNew, which is reserved for ids appearing for the first time at
// runtime.
func (t *Table) LoadFromSnapshot(id uint8) (*Node, []Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := New(id)
	t.nodes[id] = n
	t.fromSnapshot[id] = true
	return n, []Event{{Kind: EventNodeAdded, NodeID: id}}
}

// ReconcileInitData compares a SERIAL_API_GET_INIT_DATA bitmap (232 bits,
// bit 0 = node 1) against the current table (spec.md §4.4): ids newly set
// create a node and emit NodeAdded+NodeNew; known snapshot-loaded ids reset
// to StageAssociations; ids no longer set delete their node and emit
// NodeRemoved. Finishes by checking for the AwakeNodesQueried/
// AllNodesQueried transitions, which a reconciliation can trigger by
// removing the last incomplete node.
func (t *Table) ReconcileInitData(bitmap [29]byte) []Event {
	t.mu.Lock()

	present := make(map[uint8]bool, 232)
	var events []Event

	for i := 0; i < 232; i++ {
		byteIdx, bit := i/8, uint(i%8)
		if bitmap[byteIdx]&(1<<bit) == 0 {
			continue
		}
		id := uint8(i + 1)
		present[id] = true

		if _, ok := t.nodes[id]; !ok {
			t.nodes[id] = New(id)
			events = append(events, Event{Kind: EventNodeAdded, NodeID: id}, Event{Kind: EventNodeNew, NodeID: id})
		} else if t.fromSnapshot[id] {
			t.nodes[id].SetStage(StageAssociations)
			delete(t.fromSnapshot, id)
		}
	}

	for id := range t.nodes {
		if present[id] {
			continue
		}
		delete(t.nodes, id)
		delete(t.fromSnapshot, id)
		events = append(events, Event{Kind: EventNodeRemoved, NodeID: id})
	}

	t.mu.Unlock()
	return append(events, t.CheckCompletion()...)
}

// Remove deletes id from the table (a controller-reported removal outside
// init-data reconciliation, e.g. RemoveFailedNode) and emits NodeRemoved,
// after unlinking, per spec.md §4.4.
func (t *Table) Remove(id uint8) []Event {
	t.mu.Lock()
	_, ok := t.nodes[id]
	if ok {
		delete(t.nodes, id)
		delete(t.fromSnapshot, id)
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}
	events := []Event{{Kind: EventNodeRemoved, NodeID: id}}
	return append(events, t.CheckCompletion()...)
}

// CheckCompletion scans the table for the AwakeNodesQueried/AllNodesQueried
// transitions of spec.md §4.6: AllNodesQueried fires once every known node
// is Complete; AwakeNodesQueried fires once every node that isn't Complete
// is a sleeping (non-listening, non-frequent-listening) node. Both fire at
// most once for the table's lifetime.
func (t *Table) CheckCompletion() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allNodesQueried || len(t.nodes) == 0 {
		return nil
	}

	allComplete := true
	awakeComplete := true
	for _, n := range t.nodes {
		if n.IsComplete() {
			continue
		}
		allComplete = false
		n.mu.RLock()
		awake := n.Listening || n.FrequentListening
		n.mu.RUnlock()
		if awake {
			awakeComplete = false
		}
	}

	var events []Event
	switch {
	case allComplete:
		t.allNodesQueried = true
		if !t.awakeNodesQueried {
			t.awakeNodesQueried = true
			events = append(events, Event{Kind: EventAwakeNodesQueried})
		}
		events = append(events, Event{Kind: EventAllNodesQueried})
	case awakeComplete && !t.awakeNodesQueried:
		t.awakeNodesQueried = true
		events = append(events, Event{Kind: EventAwakeNodesQueried})
	}
	return events
}
