// SPDX-License-Identifier: Apache-2.0
package driver

import (
	"context"
	"time"

	"github.com/gozwave/core/notify"
	"github.com/gozwave/core/queue"
)

// pollLoop is the Poll thread of spec.md §5: it drains poll.List one
// ValueID at a time, spaced so a full sweep takes the configured interval,
// and pushes a read request at queue.Poll — the lowest-priority rung, so a
// poll never preempts real traffic. A sleeping target is never pushed
// directly; it is flagged via WakeUp.SetPollRequired and picked up once the
// node checks in (spec.md §4.6).
func (d *Driver) pollLoop(ctx context.Context) {
	timer := time.NewTimer(time.Second)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.exit:
			return
		case <-timer.C:
		}

		id, delay, ok := d.poller.Next()
		if !ok {
			timer.Reset(delay)
			continue
		}
		d.pollValue(id)
		timer.Reset(delay)
	}
}

// pollValue pushes a read request for id at queue.Poll, or defers it via
// WakeUp.SetPollRequired if the owning node is currently asleep.
func (d *Driver) pollValue(id notify.ValueID) {
	n := d.nodes.Get(id.NodeID)
	if n == nil {
		return
	}

	if n.IsSleepingCapable() && n.IsAsleep() {
		if w := d.wakeUpHandler(id.NodeID); w != nil {
			w.SetPollRequired(true)
		}
		return
	}

	h := n.CommandClass(id.CommandClassID)
	if h == nil {
		return
	}
	msgs := h.RequestState(id.NodeID)
	if len(msgs) == 0 {
		return
	}

	items := make([]queue.Item, len(msgs))
	for i, m := range msgs {
		items[i] = queue.Item{Message: m}
	}
	d.sendMu.Lock()
	d.queues.PushMany(queue.Poll, items)
	d.sendMu.Unlock()
}
