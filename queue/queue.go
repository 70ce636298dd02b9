// SPDX-License-Identifier: Apache-2.0
// Package queue implements the Send Queue Scheduler of spec.md §4.3: five
// FIFO priority queues, each with a set-iff-non-empty signal, and selection
// of the next runnable item in strict priority order.
package queue

import "github.com/gozwave/core/message"

// Priority ranks the five queues highest to lowest, matching spec.md §3's
// Command > WakeUp > Send > Query > Poll ordering.
type Priority int

const (
	Command Priority = iota
	WakeUp
	Send
	Query
	Poll
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case Command:
		return "Command"
	case WakeUp:
		return "WakeUp"
	case Send:
		return "Send"
	case Query:
		return "Query"
	case Poll:
		return "Poll"
	default:
		return "Unknown"
	}
}

// Item is a QueueItem (spec.md §3): either a Message to send, or a
// QueryStageComplete marker that drives a node's stage advance inline with
// ordinary queue traffic.
type Item struct {
	Message *message.Message // non-nil for a SendMessage item

	// The following are set for a QueryStageComplete marker (Message == nil).
	IsQueryStageComplete bool
	NodeID               uint8
	Stage                int
}

// TargetNodeID returns the node id this item is addressed to, used by the
// sleeping-redirection logic to find same-target items in a queue.
func (it *Item) TargetNodeID() uint8 {
	if it.Message != nil {
		return it.Message.TargetNodeID
	}
	return it.NodeID
}

// Queues holds the five priority FIFOs and per-queue "non-empty" signals.
// Every mutating method must be called with the caller already holding
// whatever mutex the driver uses to serialise access (spec.md §5: the send
// mutex); Queues itself does no locking, keeping it usable both from the
// driver's own mutex and from tests that want an isolated instance.
type Queues struct {
	lists   [numPriorities][]Item
	signals [numPriorities]chan struct{}
}

// New returns an empty Queues with all signals initialised (unset, since all
// queues start empty — invariant P2).
func New() *Queues {
	q := &Queues{}
	for i := range q.signals {
		q.signals[i] = make(chan struct{}, 1)
	}
	return q
}

// setSignal arms priority p's signal if unset, so a single waiting receive
// on it will fire; drainSignal clears it. Both are idempotent, giving the
// "signal set iff queue non-empty" invariant without double-buffering.
func (q *Queues) setSignal(p Priority) {
	select {
	case q.signals[p] <- struct{}{}:
	default:
	}
}

func (q *Queues) drainSignal(p Priority) {
	select {
	case <-q.signals[p]:
	default:
	}
}

// Signal returns the channel that becomes readable while priority p's queue
// is non-empty, for use in a select alongside the other priorities and the
// transport-readable/exit channels (spec.md §5).
func (q *Queues) Signal(p Priority) <-chan struct{} {
	return q.signals[p]
}

// Push appends item to priority p's queue and arms its signal.
func (q *Queues) Push(p Priority, item Item) {
	q.lists[p] = append(q.lists[p], item)
	q.setSignal(p)
}

// Len returns the number of items queued at priority p.
func (q *Queues) Len(p Priority) int {
	return len(q.lists[p])
}

// Empty reports whether every priority queue is empty.
func (q *Queues) Empty() bool {
	for p := Priority(0); p < numPriorities; p++ {
		if len(q.lists[p]) > 0 {
			return false
		}
	}
	return true
}

// Pop selects the highest-priority non-empty queue and removes its head
// item, re-arming or clearing that queue's signal as its new length demands.
// Returns ok == false if every queue is empty.
func (q *Queues) Pop() (p Priority, item Item, ok bool) {
	for p = Command; p < numPriorities; p++ {
		if len(q.lists[p]) == 0 {
			continue
		}
		item = q.lists[p][0]
		q.lists[p] = q.lists[p][1:]
		if len(q.lists[p]) > 0 {
			q.setSignal(p)
		} else {
			q.drainSignal(p)
		}
		return p, item, true
	}
	return 0, Item{}, false
}

// RemoveTarget removes every item in priority p's queue whose TargetNodeID
// matches nodeID, invoking keep(item) for each removed item so the caller
// can redirect it (e.g. onto a node's sleeping buffer) before it is
// discarded from the scheduler queue. Used by sleeping-redirection on
// failure (spec.md §4.3) to sweep every queue for the same target.
func (q *Queues) RemoveTarget(p Priority, nodeID uint8, keep func(Item)) {
	kept := q.lists[p][:0]
	for _, it := range q.lists[p] {
		if it.TargetNodeID() == nodeID {
			if keep != nil {
				keep(it)
			}
			continue
		}
		kept = append(kept, it)
	}
	q.lists[p] = kept

	if len(q.lists[p]) > 0 {
		q.setSignal(p)
	} else {
		q.drainSignal(p)
	}
}

// PushMany appends items to priority p's queue in order, preserving their
// relative order — used by wake delivery to splice a sleeping node's
// buffered items onto the WakeUp queue, which already outranks Send and
// Query by priority alone (spec.md §4.3).
func (q *Queues) PushMany(p Priority, items []Item) {
	if len(items) == 0 {
		return
	}
	q.lists[p] = append(q.lists[p], items...)
	q.setSignal(p)
}
