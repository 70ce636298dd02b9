// SPDX-License-Identifier: Apache-2.0
package driver

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gozwave/core/cc"
	"github.com/gozwave/core/frame"
	"github.com/gozwave/core/message"
	"github.com/gozwave/core/node"
	"github.com/gozwave/core/notify"
	"github.com/gozwave/core/queue"
	"github.com/gozwave/core/txn"
	"github.com/gozwave/core/zwmsg"
)

// handleInbound processes one classified inbound event: an ACK/NAK/CAN
// signal, or a completed Frame (spec.md §4.2 step 4).
func (d *Driver) handleInbound(ctx context.Context, ev inboundEvent) {
	switch ev.kind {
	case inboundACK:
		d.sendMu.Lock()
		msg := d.engine.OnAck()
		d.sendMu.Unlock()
		if msg != nil {
			d.onTransactionComplete(msg)
		}

	case inboundNAK, inboundCAN:
		d.sendMu.Lock()
		result, err := d.engine.OnNakOrCan(ev.kind == inboundCAN, time.Now(), func(wire []byte) error {
			return d.transport.Write(wire)
		})
		d.sendMu.Unlock()
		if err != nil {
			d.log.WithError(err).Warn("failed to retry after NAK/CAN")
			return
		}
		if result.Dropped {
			d.onTransactionDropped(result.Message)
		}

	case inboundFrame:
		d.handleFrame(ctx, ev.frame)
	}
}

// handleFrame routes a completed Frame to the transaction engine, then to
// either the node dispatcher or the driver's own init-sequence field capture,
// then to the controller-command state machine — a frame can be simultaneously
// the answer to an outstanding transaction and unsolicited node traffic
// that must still reach its command-class handler (spec.md §4.2/§4.4).
func (d *Driver) handleFrame(ctx context.Context, f *frame.Frame) {
	src := d.frameSource(f)

	d.sendMu.Lock()
	completed := d.engine.OnFrame(f, src)
	d.sendMu.Unlock()
	if completed != nil {
		if isSendDataCallback(f) {
			d.handleSendDataCallback(completed, f.Body)
		} else {
			d.onTransactionComplete(completed)
		}
	}

	switch f.Function {
	case zwmsg.ApplicationCommandHandler:
		d.handleApplicationCommand(f.Body)
	case zwmsg.ApplicationUpdate:
		d.handleApplicationUpdate(f.Body)
	default:
		d.captureControllerResponse(f)
	}

	if zwmsg.IsControllerCommand(f.Function) {
		d.handleControllerCommandFrame(f)
	}
}

// frameSource extracts the routing facts txn.Engine.OnFrame needs from an
// inbound frame: which node an APPLICATION_COMMAND came from and its
// command class, or a REQUEST's callback id.
func (d *Driver) frameSource(f *frame.Frame) txn.FrameSource {
	var src txn.FrameSource
	if f.Function == zwmsg.ApplicationCommandHandler && len(f.Body) >= 4 {
		src.SourceNodeID = f.Body[1]
		src.CommandClassID = f.Body[3]
	}
	if f.Type == frame.Request && len(f.Body) >= 1 {
		// The callback id is conventionally the last body byte of an
		// asynchronous completion frame (SendData, controller-command
		// progress); this is applied to every REQUEST frame, with no
		// per-function layout override.
		src.HasCallback = true
		src.RequestCallback = f.Body[len(f.Body)-1]
	}
	return src
}

// isSendDataCallback reports whether f is the asynchronous transmit-complete
// callback for a SEND_DATA or REPLICATION_SEND_DATA request, as opposed to
// the synchronous RESPONSE that merely acknowledges the request was queued.
func isSendDataCallback(f *frame.Frame) bool {
	return f.Type == frame.Request && (f.Function == zwmsg.SendData || f.Function == zwmsg.ReplicationSendData)
}

// sendDataCallbackStatus extracts the transmit-status byte from a
// completed SEND_DATA/REPLICATION_SEND_DATA callback body. This driver's
// callback id occupies the last body byte (frameSource's convention for
// every asynchronous completion frame); the status byte immediately
// precedes it.
func sendDataCallbackStatus(body []uint8) (status uint8, ok bool) {
	if len(body) < 2 {
		return 0, false
	}
	return body[len(body)-2], true
}

// handleSendDataCallback branches on a completed SEND_DATA transaction's
// transmit-status byte (spec.md §4.2's last paragraph, §4.3's sleeping
// redirection, §7's destination-unreachable/destination-silent bullets):
// NO_ROUTE is permanent and is dropped outright; NO_ACK is evidence the
// destination went back to sleep and is redirected to its sleeping buffer,
// and is reported as failed only when the node is not sleeping-capable and
// no redirect happens; FAIL/NOT_IDLE are transient transmit
// failures reported to the caller without any redirection.
func (d *Driver) handleSendDataCallback(msg *message.Message, body []uint8) {
	status, ok := sendDataCallbackStatus(body)
	if !ok {
		d.onTransactionComplete(msg)
		return
	}

	switch status {
	case zwmsg.TransmitCompleteOK:
		d.onTransactionComplete(msg)
	case zwmsg.TransmitCompleteNoRoute:
		d.finishWaiter(msg, errNoRoute)
		d.stats.IncDropped()
	case zwmsg.TransmitCompleteNoAck:
		if !d.redirectToSleepingBuffer(msg) {
			d.finishWaiter(msg, errNoAck)
		}
	default: // TransmitCompleteFail, TransmitCompleteNotIdle
		d.finishWaiter(msg, errSendFailed)
	}
}

// wakeUpHandler returns nodeID's registered WakeUp handler, or nil if it
// has none registered yet (not sleeping-capable, or NodeInfo hasn't
// revealed the class yet).
func (d *Driver) wakeUpHandler(nodeID uint8) *cc.WakeUp {
	n := d.nodes.Get(nodeID)
	if n == nil {
		return nil
	}
	w, _ := n.CommandClass(zwmsg.CommandClassWakeUp).(*cc.WakeUp)
	return w
}

// redirectToSleepingBuffer moves msg, and every other item already queued
// for the same target, onto that node's sleeping buffer (spec.md §4.3). A
// silent or retry-exhausted destination is exactly the signal that the
// node went back to sleep, so its WakeUp handler is marked asleep too.
// Reports whether the redirect happened (false if the node isn't
// sleeping-capable, in which case the caller should report failure).
func (d *Driver) redirectToSleepingBuffer(msg *message.Message) bool {
	n := d.nodes.Get(msg.TargetNodeID)
	if n == nil || !n.IsSleepingCapable() {
		return false
	}

	if w := d.wakeUpHandler(msg.TargetNodeID); w != nil {
		w.MarkAsleep()
	}

	n.BufferAppend(queue.Item{Message: msg})
	d.sendMu.Lock()
	for _, p := range []queue.Priority{queue.Command, queue.WakeUp, queue.Send, queue.Query, queue.Poll} {
		d.queues.RemoveTarget(p, msg.TargetNodeID, func(it queue.Item) {
			n.BufferAppend(it)
		})
	}
	d.sendMu.Unlock()
	return true
}

// parseApplicationCommand extracts (nodeID, commandClassID, commandID,
// data) from an APPLICATION_COMMAND_HANDLER body: [status, nodeID, length,
// commandClassID, commandID, data...].
func parseApplicationCommand(body []uint8) (nodeID, ccID, cmdID uint8, data []uint8, ok bool) {
	if len(body) < 5 {
		return 0, 0, 0, nil, false
	}
	nodeID = body[1]
	length := int(body[2])
	if length < 2 || len(body) < 3+length {
		return 0, 0, 0, nil, false
	}
	ccID = body[3]
	cmdID = body[4]
	data = body[5 : 3+length]
	return nodeID, ccID, cmdID, data, true
}

func (d *Driver) handleApplicationCommand(body []uint8) {
	nodeID, ccID, cmdID, data, ok := parseApplicationCommand(body)
	if !ok {
		return
	}
	d.stats.IncNodeReadCnt(nodeID)

	n := d.nodes.Get(nodeID)
	if n == nil {
		return
	}
	n.HandleApplicationCommand(ccID, cmdID, data)

	switch ccID {
	case zwmsg.CommandClassManufacturerSpecific:
		if h, ok := n.CommandClass(ccID).(*cc.ManufacturerSpecific); ok {
			if mfg, pt, pid, done := h.Report(); done {
				n.ApplyManufacturerSpecific(mfg, pt, pid)
			}
		}
	case zwmsg.CommandClassNodeNaming:
		if h, ok := n.CommandClass(ccID).(*cc.Naming); ok {
			name, loc := h.NameAndLocation()
			n.ApplyNaming(name, loc)
		}
	}

	d.notify.ValueChanged(notify.ValueID{NodeID: nodeID, CommandClassID: ccID})
	d.notify.Drain()
	d.tryAdvanceQuery(nodeID)
}

// parseApplicationUpdate extracts (nodeID, basic, generic, specific,
// classes) from an APPLICATION_UPDATE "node info received" body: [status,
// nodeID, length, basic, generic, specific, classes...].
func parseApplicationUpdate(body []uint8) (nodeID, basic, generic, specific uint8, classes []uint8, ok bool) {
	if len(body) < 6 {
		return 0, 0, 0, 0, nil, false
	}
	nodeID = body[1]
	length := int(body[2])
	if length < 3 || len(body) < 3+length {
		return 0, 0, 0, 0, nil, false
	}
	basic, generic, specific = body[3], body[4], body[5]
	classes = body[6 : 3+length]
	return nodeID, basic, generic, specific, classes, true
}

func (d *Driver) handleApplicationUpdate(body []uint8) {
	nodeID, basic, generic, specific, classes, ok := parseApplicationUpdate(body)
	if !ok {
		return
	}
	n := d.nodes.Get(nodeID)
	if n == nil {
		return
	}

	supported := n.ApplyNodeInfo(basic, generic, specific, classes)
	d.log.WithFields(logrus.Fields{
		"node": nodeID,
		"type": zwmsg.GenericTypeName(generic),
	}).Debug("received node info")
	for _, classID := range supported {
		if n.CommandClass(classID) != nil {
			continue
		}
		if h := newCommandClassHandler(classID, nodeID); h != nil {
			if w, ok := h.(*cc.WakeUp); ok {
				w.SetOnAwake(d.onNodeAwake)
			}
			n.RegisterCommandClass(h)
		}
	}

	d.tryAdvanceQuery(nodeID)
}

// newCommandClassHandler instantiates the handler for classID, or nil if
// this driver does not implement that class — an unimplemented class is
// simply left unqueried, matching spec.md §1's "no device-specific command
// class database" non-goal.
func newCommandClassHandler(classID, nodeID uint8) node.CommandClassHandler {
	switch classID {
	case zwmsg.CommandClassManufacturerSpecific:
		return cc.NewManufacturerSpecific(nodeID)
	case zwmsg.CommandClassVersion:
		return cc.NewVersion(nodeID)
	case zwmsg.CommandClassAssociation:
		return cc.NewAssociation(nodeID)
	case zwmsg.CommandClassBattery:
		return cc.NewBattery(nodeID)
	case zwmsg.CommandClassBasic:
		return cc.NewBasic(nodeID)
	case zwmsg.CommandClassConfiguration:
		return cc.NewConfiguration(nodeID)
	case zwmsg.CommandClassNodeNaming:
		return cc.NewNaming(nodeID)
	case zwmsg.CommandClassWakeUp:
		return cc.NewWakeUp(nodeID)
	default:
		return nil
	}
}

// tryAdvanceQuery asks a node's registered handlers for any messages the
// current stage still needs, and pushes a QueryStageComplete marker at
// Query priority once none remain, so the marker is ordered after every
// message the stage itself queued (spec.md §4.4).
func (d *Driver) tryAdvanceQuery(nodeID uint8) {
	n := d.nodes.Get(nodeID)
	if n == nil {
		return
	}
	stage := n.Stage()
	msgs := n.AdvanceQueryForClasses()
	if len(msgs) > 0 {
		d.enqueueMessages(queue.Query, msgs)
		return
	}
	d.sendMu.Lock()
	d.queues.Push(queue.Query, queue.Item{IsQueryStageComplete: true, NodeID: nodeID, Stage: int(stage)})
	d.sendMu.Unlock()
}

// advanceNodeStage runs when a QueryStageComplete marker reaches the head
// of the scheduler: it moves the node to its next stage (if the marker
// isn't stale, invariant P5) and enqueues whatever that stage needs.
func (d *Driver) advanceNodeStage(nodeID uint8, stage node.Stage) {
	n := d.nodes.Get(nodeID)
	if n == nil {
		return
	}
	if n.QueryStageComplete(stage) {
		return // stale marker: node already moved past this stage
	}

	newStage, msgs := n.AdvanceQueries()
	if len(msgs) > 0 {
		d.enqueueMessages(queue.Query, msgs)
		return
	}
	if newStage == node.StageComplete {
		for _, ev := range d.nodes.CheckCompletion() {
			d.translateTableEvent(ev)
		}
		if d.opts.SaveConfiguration {
			d.save()
		}
		return
	}
	d.tryAdvanceQuery(nodeID)
}

// captureControllerResponse fills in the driver's controller-identity
// fields from the init-sequence's RESPONSE frames (spec.md §6).
func (d *Driver) captureControllerResponse(f *frame.Frame) {
	if f.Type != frame.Response {
		return
	}
	d.stats.IncControllerReadCnt()

	switch f.Function {
	case zwmsg.MemoryGetID:
		if len(f.Body) >= 5 {
			d.homeID = uint32(f.Body[0])<<24 | uint32(f.Body[1])<<16 | uint32(f.Body[2])<<8 | uint32(f.Body[3])
			d.controllerNodeID = f.Body[4]
		}
	case zwmsg.GetControllerCapabilities:
		if len(f.Body) >= 1 {
			d.controllerCapabilities = f.Body[0]
		}
	case zwmsg.SerialAPIGetCapabilities:
		if len(f.Body) >= 1 {
			d.apiCapabilities = f.Body[0]
		}
	case zwmsg.GetSUCNodeID:
		if len(f.Body) >= 1 {
			d.sucNodeID = f.Body[0]
		}
	case zwmsg.SerialAPIGetInitData:
		if bitmap, ok := extractInitDataBitmap(f.Body); ok {
			for _, ev := range d.nodes.ReconcileInitData(bitmap) {
				d.translateTableEvent(ev)
			}
			for _, n := range d.nodes.All() {
				if n.Stage() != node.StageComplete {
					d.tryAdvanceQuery(n.ID)
				}
			}
		}
	case zwmsg.GetNodeProtocolInfo:
		d.applyProtocolInfoResponse(f.Body)
	}
}

// extractInitDataBitmap pulls the 29-byte node bitmap out of a
// SERIAL_API_GET_INIT_DATA response: [apiVersion, capabilities,
// bitmapLength, bitmap[bitmapLength]...].
func extractInitDataBitmap(body []uint8) ([29]byte, bool) {
	var bitmap [29]byte
	if len(body) < 3 {
		return bitmap, false
	}
	length := int(body[2])
	if length != 29 || len(body) < 3+29 {
		return bitmap, false
	}
	copy(bitmap[:], body[3:3+29])
	return bitmap, true
}

// applyProtocolInfoResponse decodes a GET_NODE_PROTOCOL_INFO response's
// capability bitmask; the exchange doesn't carry the target node id so the
// caller correlates it against the node whose stage is presently at
// StageProtocolInfo and awaiting a reply. Since only one transaction is ever
// outstanding (invariant P1), that is unambiguous at the time this fires.
func (d *Driver) applyProtocolInfoResponse(body []uint8) {
	if len(body) < 6 {
		return
	}
	caps := body[0]
	listening := caps&0x80 != 0
	routing := caps&0x40 != 0
	beaming := body[1]&0x10 != 0
	securityCapable := body[1]&0x01 != 0
	basic, generic, specific := body[3], body[4], body[5]
	controllerClass := basic == zwmsg.BasicTypeController || basic == zwmsg.BasicTypeStaticController
	frequentListening := !listening && body[1]&0x60 != 0

	n := d.nodeAwaitingStage(node.StageProtocolInfo)
	if n == nil {
		return
	}
	n.ApplyProtocolInfo(listening, frequentListening, routing, beaming, securityCapable, controllerClass, basic, generic, specific)
	d.tryAdvanceQuery(n.ID)
}

// nodeAwaitingStage returns the (necessarily unique, invariant P1) node
// currently parked at stage, or nil.
func (d *Driver) nodeAwaitingStage(stage node.Stage) *node.Node {
	for _, n := range d.nodes.All() {
		if n.Stage() == stage {
			return n
		}
	}
	return nil
}

// onNodeAwake is cc.WakeUp's callback: splice the node's sleeping buffer
// onto the WakeUp queue, which already outranks Send/Query by priority
// alone (spec.md §4.3's wake-delivery splice rule), then queue a WakeUp No
// More Information notice behind it so the node is told it can go back to
// sleep once its buffered traffic (if any) has drained. A poll deferred while
// the node slept (WakeUp.PollRequired) is issued as a RequestState from every
// registered handler, ahead of that notice.
func (d *Driver) onNodeAwake(nodeID uint8) {
	n := d.nodes.Get(nodeID)
	if n == nil {
		return
	}
	items := n.DrainBuffer()
	if w := d.wakeUpHandler(nodeID); w != nil {
		if w.PollRequired() {
			for _, h := range n.Handlers() {
				for _, m := range h.RequestState(nodeID) {
					items = append(items, queue.Item{Message: m})
				}
			}
		}
		items = append(items, queue.Item{Message: w.NoMoreInformation(d.nextCallbackID())})
	}
	d.sendMu.Lock()
	d.queues.PushMany(queue.WakeUp, items)
	d.sendMu.Unlock()
	d.notify.NodeReady(nodeID)
	d.notify.Drain()
}

// translateTableEvent converts a node.Table event into the matching
// notification (spec.md §4.6).
func (d *Driver) translateTableEvent(ev node.Event) {
	switch ev.Kind {
	case node.EventNodeAdded:
		d.notify.NodeAdded(ev.NodeID)
	case node.EventNodeNew:
		d.notify.NodeNew(ev.NodeID)
	case node.EventNodeRemoved:
		d.notify.NodeRemoved(ev.NodeID)
	case node.EventAwakeNodesQueried:
		d.poller.Start()
		d.notify.AwakeNodesQueried()
	case node.EventAllNodesQueried:
		d.notify.AllNodesQueried()
	}
	d.notify.Drain()
}

// onTransactionComplete finishes bookkeeping once the engine reports msg
// fully answered: wakes any blocking waiter, marks the target's WakeUp
// handler asleep once its No More Information notice has gone out, and if
// opted in, posts a MsgComplete notification.
func (d *Driver) onTransactionComplete(msg *message.Message) {
	d.finishWaiter(msg, nil)
	if msg.IsWakeUpNoMoreInformation() {
		if w := d.wakeUpHandler(msg.TargetNodeID); w != nil {
			w.MarkAsleep()
		}
	}
	if d.opts.NotifyTransactions {
		d.notify.MsgComplete(msg.TargetNodeID)
		d.notify.Drain()
	}
}

// onTransactionDropped implements spec.md §4.3's redirect-on-failure rule:
// a message that exhausted its retry budget against a node that is asleep
// (or has no listening capability at all) is moved onto that node's
// sleeping buffer instead of being discarded, and every other queued item
// addressed to the same node follows it (MoveMessagesToWakeUpQueue).
func (d *Driver) onTransactionDropped(msg *message.Message) {
	d.finishWaiter(msg, errDropped)
	d.redirectToSleepingBuffer(msg)
}
