// SPDX-License-Identifier: Apache-2.0
// Package notify implements the Notification Bus of spec.md §4.6:
// producers append tagged notifications to an internal list; the driver
// drains that list to every registered watcher, in FIFO order, right after
// posting.
package notify

import "sync"

// Kind tags a Notification's variant.
type Kind int

const (
	NodeAdded Kind = iota
	NodeNew
	NodeRemoved
	NodeReady
	AwakeNodesQueried
	AllNodesQueried
	DriverReady
	DriverReset
	ValueAdded
	ValueChanged
	ValueRemoved
	Group
	ButtonCreate
	ButtonDelete
	ButtonOn
	ButtonOff
	MsgComplete
)

func (k Kind) String() string {
	switch k {
	case NodeAdded:
		return "NodeAdded"
	case NodeNew:
		return "NodeNew"
	case NodeRemoved:
		return "NodeRemoved"
	case NodeReady:
		return "NodeReady"
	case AwakeNodesQueried:
		return "AwakeNodesQueried"
	case AllNodesQueried:
		return "AllNodesQueried"
	case DriverReady:
		return "DriverReady"
	case DriverReset:
		return "DriverReset"
	case ValueAdded:
		return "ValueAdded"
	case ValueChanged:
		return "ValueChanged"
	case ValueRemoved:
		return "ValueRemoved"
	case Group:
		return "Group"
	case ButtonCreate:
		return "ButtonCreate"
	case ButtonDelete:
		return "ButtonDelete"
	case ButtonOn:
		return "ButtonOn"
	case ButtonOff:
		return "ButtonOff"
	case MsgComplete:
		return "MsgComplete"
	default:
		return "Unknown"
	}
}

// ValueID identifies a single reported value: the node it belongs to, the
// command class that owns it, and an index within that class (e.g. a
// configuration parameter number or association group id).
type ValueID struct {
	NodeID         uint8
	CommandClassID uint8
	Index          uint8
}

// Notification is the tagged variant spec.md §4.6 describes. Only the
// fields relevant to Kind are meaningful; the rest are zero.
type Notification struct {
	Kind      Kind
	NodeID    uint8
	Value     ValueID
	Button    uint8
	GroupID   uint8
	VirtualID uint8
}

// Watcher receives notifications drained from the bus. Implementations
// must not call back into the driver except via its public API (spec.md
// §4.6) — the bus itself has no way to enforce this, it is a contract on
// the caller.
type Watcher func(Notification)

// Bus is a FIFO queue of pending notifications plus the set of registered
// watchers. Producers call Post or one of the per-Kind helpers; the driver
// calls Drain right after it posts, from whichever goroutine posted. The
// main loop does not drain once per wait iteration.
type Bus struct {
	mu       sync.Mutex
	pending  []Notification
	watchers []Watcher
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// AddWatcher registers fn to receive every future drained notification.
func (b *Bus) AddWatcher(fn Watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// Post appends n to the pending list, preserving FIFO order relative to
// other Post calls (spec.md §4.6).
func (b *Bus) Post(n Notification) {
	b.mu.Lock()
	b.pending = append(b.pending, n)
	b.mu.Unlock()
}

// NodeAdded posts a NodeAdded notification.
func (b *Bus) NodeAdded(nodeID uint8) { b.Post(Notification{Kind: NodeAdded, NodeID: nodeID}) }

// NodeNew posts a NodeNew notification.
func (b *Bus) NodeNew(nodeID uint8) { b.Post(Notification{Kind: NodeNew, NodeID: nodeID}) }

// NodeRemoved posts a NodeRemoved notification.
func (b *Bus) NodeRemoved(nodeID uint8) { b.Post(Notification{Kind: NodeRemoved, NodeID: nodeID}) }

// NodeReady posts a NodeReady notification. The driver posts it when a node
// announces it is awake and its buffered messages have been queued, not
// when the node reaches StageComplete.
func (b *Bus) NodeReady(nodeID uint8) { b.Post(Notification{Kind: NodeReady, NodeID: nodeID}) }

// AwakeNodesQueried posts the table-wide AwakeNodesQueried notification.
func (b *Bus) AwakeNodesQueried() { b.Post(Notification{Kind: AwakeNodesQueried}) }

// AllNodesQueried posts the table-wide AllNodesQueried notification.
func (b *Bus) AllNodesQueried() { b.Post(Notification{Kind: AllNodesQueried}) }

// DriverReady posts the startup-complete notification.
func (b *Bus) DriverReady() { b.Post(Notification{Kind: DriverReady}) }

// DriverReset posts a controller-reset notification.
func (b *Bus) DriverReset() { b.Post(Notification{Kind: DriverReset}) }

// ValueChanged posts a value-report notification for id.
func (b *Bus) ValueChanged(id ValueID) { b.Post(Notification{Kind: ValueChanged, NodeID: id.NodeID, Value: id}) }

// ValueAdded posts a value-discovered notification for id.
func (b *Bus) ValueAdded(id ValueID) { b.Post(Notification{Kind: ValueAdded, NodeID: id.NodeID, Value: id}) }

// ValueRemoved posts a value-gone notification for id.
func (b *Bus) ValueRemoved(id ValueID) { b.Post(Notification{Kind: ValueRemoved, NodeID: id.NodeID, Value: id}) }

// GroupChanged posts a Group notification for a node's association groups.
func (b *Bus) GroupChanged(nodeID, groupID uint8) {
	b.Post(Notification{Kind: Group, NodeID: nodeID, GroupID: groupID})
}

// Button posts one of the ButtonCreate/Delete/On/Off notifications for a
// bridge controller's virtual-node button map (spec.md §7).
func (b *Bus) Button(kind Kind, nodeID, button, virtualID uint8) {
	b.Post(Notification{Kind: kind, NodeID: nodeID, Button: button, VirtualID: virtualID})
}

// MsgComplete posts a MsgComplete notification once a transaction closes,
// carrying the node it targeted.
func (b *Bus) MsgComplete(nodeID uint8) { b.Post(Notification{Kind: MsgComplete, NodeID: nodeID}) }

// Drain delivers every pending notification, in order, to every registered
// watcher, then clears the pending list.
func (b *Bus) Drain() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	watchers := append([]Watcher(nil), b.watchers...)
	b.mu.Unlock()

	for _, n := range pending {
		for _, w := range watchers {
			w(n)
		}
	}
}

// Pending reports how many notifications are queued for the next Drain.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
