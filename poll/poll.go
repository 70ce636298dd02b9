// SPDX-License-Identifier: Apache-2.0
// Package poll implements the background Poller of spec.md §4.6: a
// rotating list of ValueIDs, amortized so a full sweep takes pollInterval
// regardless of list size, deferring to a target node's WakeUp status
// instead of enqueueing directly against a sleeping node.
package poll

import (
	"sync"
	"time"

	"github.com/gozwave/core/notify"
)

// defaultInterval matches OpenZWave's default poll interval.
const defaultInterval = 30 * time.Second

// List holds the poller's rotating queue and its own mutex, kept separate
// from the node mutex per spec.md §4.6 ("the poller never holds the node
// mutex across its wait").
type List struct {
	mu       sync.Mutex
	interval time.Duration
	items    []notify.ValueID
	enabled  map[notify.ValueID]bool
	started  bool
}

// New returns an empty poll list at the default interval.
func New() *List {
	return &List{interval: defaultInterval, enabled: make(map[notify.ValueID]bool)}
}

// SetInterval changes the full-sweep interval; the per-item sleep is
// recomputed on the next wake.
func (l *List) SetInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interval = d
}

// Enable adds id to the poll list if not already present.
func (l *List) Enable(id notify.ValueID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enabled[id] {
		return
	}
	l.enabled[id] = true
	l.items = append(l.items, id)
}

// Disable removes id from the poll list.
func (l *List) Disable(id notify.ValueID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled[id] {
		return
	}
	delete(l.enabled, id)
	for i, v := range l.items {
		if v == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			break
		}
	}
}

// IsEnabled reports whether id is currently polled.
func (l *List) IsEnabled(id notify.ValueID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled[id]
}

// Len returns the number of polled values.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Start marks the poller as eligible to run; the driver calls it when
// AwakeNodesQueried fires, and Next reports ok == false until then.
func (l *List) Start() {
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()
}

// Started reports whether Start has been called.
func (l *List) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Next rotates the head of the list to the tail and returns it along with
// the delay the caller should wait before calling Next again, so a full
// sweep takes exactly the configured interval. Returns ok == false if the
// list is empty or polling hasn't started.
func (l *List) Next() (id notify.ValueID, delay time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started || len(l.items) == 0 {
		return notify.ValueID{}, l.interval, false
	}

	id = l.items[0]
	l.items = append(l.items[1:], id)
	delay = l.interval / time.Duration(len(l.items))
	return id, delay, true
}
