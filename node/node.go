// SPDX-License-Identifier: Apache-2.0
// Package node models a single Z-Wave node known to the controller: its
// protocol capabilities, its command-class handlers, its query-stage
// progress (spec.md §4.4), and — for sleeping nodes — its pending-message
// buffer (spec.md §4.3).
package node

import (
	"sync"

	"github.com/gozwave/core/message"
	"github.com/gozwave/core/queue"
	"github.com/gozwave/core/zwmsg"
)

// CommandClassHandler is implemented by each command class in package cc.
// Node holds handlers behind this interface rather than importing cc
// directly, so the dependency runs cc -> node and never node -> cc.
type CommandClassHandler interface {
	ClassID() uint8
	HandleIncoming(commandID uint8, data []uint8)
	RequestState(nodeID uint8) []*message.Message
	AdvanceQuery(nodeID uint8, stage Stage) ([]*message.Message, bool)
	Serialize() map[string]string
	Deserialize(map[string]string)
}

// WakeUpStatus is satisfied by the WakeUp command class handler; Node asks
// it (rather than tracking sleep state itself) whether the node is
// currently reachable without buffering (spec.md §4.3).
type WakeUpStatus interface {
	IsAwake() bool
}

// Node is the Node Manager's record for one device (spec.md §4.4). All
// access must go through its methods; mu guards everything below it,
// matching the node-mutex/send-mutex split of spec.md §5 — mu here is the
// node mutex.
type Node struct {
	ID uint8

	mu sync.RWMutex

	Listening         bool
	FrequentListening bool
	Routing           bool
	Beaming           bool
	SecurityCapable   bool
	ControllerClass   bool

	Basic, Generic, Specific uint8

	ManufacturerID         uint16
	ProductType, ProductID uint16
	Name, Location         string
	Neighbours             [29]byte

	stage        Stage
	stageRetries int

	commandClasses        map[uint8]CommandClassHandler
	controlCommandClasses []uint8

	wakeUp WakeUpStatus

	sleeping []queue.Item
}

// New returns a Node at its initial query stage, as created when the node
// table first learns of id (spec.md §4.4: a node starts at ProtocolInfo).
func New(id uint8) *Node {
	return &Node{
		ID:             id,
		commandClasses: make(map[uint8]CommandClassHandler),
	}
}

// Stage returns the node's current query-stage.
func (n *Node) Stage() Stage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stage
}

// IsComplete reports whether the node has finished every query stage.
func (n *Node) IsComplete() bool {
	return n.Stage() == StageComplete
}

// SetStage forces the node's stage, used by the node table when a known
// node id reappears in SERIAL_API_GET_INIT_DATA and must be re-queried from
// Associations onward (spec.md §4.4 edge case) and by persisted-snapshot
// load.
func (n *Node) SetStage(s Stage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stage = s
	n.stageRetries = 0
}

// QueryStageComplete reports whether stage has already been passed,
// guarding against a stale QueryStageComplete queue item completing a stage
// the node has since moved beyond (invariant P5: stage only moves forward).
func (n *Node) QueryStageComplete(stage Stage) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stage > stage
}

// AdvanceQueries moves the node to its next stage and returns the messages
// needed to complete it, along with the stage entered. Call this once the
// current stage's QueryStageComplete marker has popped off the scheduler
// queue (spec.md §4.4 step 2).
func (n *Node) AdvanceQueries() (Stage, []*message.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stage = n.stage.next()
	n.stageRetries = 0
	return n.stage, n.intrinsicStageMessages(n.stage)
}

// intrinsicStageMessages returns the messages a stage itself requires
// before consulting command-class handlers — ProtocolInfo and NodeInfo are
// controller-level requests with no command class behind them (spec.md
// §4.4); every later stage is driven by AdvanceQueryForClasses.
func (n *Node) intrinsicStageMessages(stage Stage) []*message.Message {
	switch stage {
	case StageProtocolInfo:
		m := message.NewControllerRequest(zwmsg.GetNodeProtocolInfo)
		m.Payload = []uint8{n.ID}
		m.ExpectedReplyFunction = zwmsg.GetNodeProtocolInfo
		return []*message.Message{m}
	case StageNodeInfo:
		m := message.NewControllerRequest(zwmsg.RequestNodeInfo)
		m.Payload = []uint8{n.ID}
		m.ExpectedReplyFunction = zwmsg.ApplicationUpdate
		return []*message.Message{m}
	default:
		return nil
	}
}

// AdvanceQueryForClasses asks every registered command class handler
// whether it has work for the current stage, collecting their messages.
// Separate from AdvanceQueries because handlers may be registered only
// after NodeInfo has revealed the node's command class list.
func (n *Node) AdvanceQueryForClasses() []*message.Message {
	n.mu.RLock()
	stage := n.stage
	handlers := make([]CommandClassHandler, 0, len(n.commandClasses))
	for _, h := range n.commandClasses {
		handlers = append(handlers, h)
	}
	n.mu.RUnlock()

	var out []*message.Message
	for _, h := range handlers {
		msgs, applicable := h.AdvanceQuery(n.ID, stage)
		if applicable {
			out = append(out, msgs...)
		}
	}
	return out
}

// QueryStageRetry records a failed attempt at the current stage and
// reports whether its retry budget is now exhausted, letting the caller
// decide whether to advance anyway or keep the node parked (spec.md §4.4).
func (n *Node) QueryStageRetry(max int) (exhausted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stageRetries++
	return n.stageRetries >= max
}

// ApplyProtocolInfo records the fields carried by a GetNodeProtocolInfo
// response.
func (n *Node) ApplyProtocolInfo(listening, frequentListening, routing, beaming, securityCapable, controllerClass bool, basic, generic, specific uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Listening = listening
	n.FrequentListening = frequentListening
	n.Routing = routing
	n.Beaming = beaming
	n.SecurityCapable = securityCapable
	n.ControllerClass = controllerClass
	n.Basic = basic
	n.Generic = generic
	n.Specific = specific
}

// ApplyManufacturerSpecific caches the manufacturer/product triple reported
// by the ManufacturerSpecific command class onto the node record itself,
// so consumers don't need to know which handler decoded it.
func (n *Node) ApplyManufacturerSpecific(manufacturerID, productType, productID uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ManufacturerID = manufacturerID
	n.ProductType = productType
	n.ProductID = productID
}

// ApplyNaming caches the name/location reported by the NodeNaming command
// class onto the node record.
func (n *Node) ApplyNaming(name, location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Name = name
	n.Location = location
}

// SetNeighbours records the 232-bit neighbour bitmap reported by
// GetRoutingInfo (StageNeighbours, spec.md §4.4).
func (n *Node) SetNeighbours(bitmap [29]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Neighbours = bitmap
}

// Snapshot captures every persisted field in one lock acquisition, for use
// by package persist without exposing the node mutex.
type Snapshot struct {
	ID                                                             uint8
	Listening, FrequentListening, Routing, Beaming                 bool
	SecurityCapable, ControllerClass                                bool
	Basic, Generic, Specific                                        uint8
	ManufacturerID, ProductType, ProductID                          uint16
	Name, Location                                                  string
	Neighbours                                                      [29]byte
	Stage                                                            Stage
}

// Snapshot returns a point-in-time copy of the node's persisted fields.
func (n *Node) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		ID:                n.ID,
		Listening:         n.Listening,
		FrequentListening: n.FrequentListening,
		Routing:           n.Routing,
		Beaming:           n.Beaming,
		SecurityCapable:   n.SecurityCapable,
		ControllerClass:   n.ControllerClass,
		Basic:             n.Basic,
		Generic:           n.Generic,
		Specific:          n.Specific,
		ManufacturerID:    n.ManufacturerID,
		ProductType:       n.ProductType,
		ProductID:         n.ProductID,
		Name:              n.Name,
		Location:          n.Location,
		Neighbours:        n.Neighbours,
		Stage:             n.stage,
	}
}

// RestoreFromSnapshot applies a previously captured Snapshot, used when
// loading the persisted document (spec.md §4.5): every field except Stage
// is restored verbatim; Stage is applied via SetStage separately once the
// caller decides whether to trust it or force StageComplete.
func (n *Node) RestoreFromSnapshot(s Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Listening = s.Listening
	n.FrequentListening = s.FrequentListening
	n.Routing = s.Routing
	n.Beaming = s.Beaming
	n.SecurityCapable = s.SecurityCapable
	n.ControllerClass = s.ControllerClass
	n.Basic = s.Basic
	n.Generic = s.Generic
	n.Specific = s.Specific
	n.ManufacturerID = s.ManufacturerID
	n.ProductType = s.ProductType
	n.ProductID = s.ProductID
	n.Name = s.Name
	n.Location = s.Location
	n.Neighbours = s.Neighbours
}

// RegisterCommandClass attaches a handler, keyed by its class id. Safe to
// call again for the same class id (e.g. on re-deserialization), replacing
// the previous handler.
func (n *Node) RegisterCommandClass(h CommandClassHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commandClasses[h.ClassID()] = h
	if h.ClassID() == zwmsg.CommandClassWakeUp {
		if ws, ok := h.(WakeUpStatus); ok {
			n.wakeUp = ws
		}
	}
}

// CommandClass returns the handler registered for classID, or nil.
func (n *Node) CommandClass(classID uint8) CommandClassHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.commandClasses[classID]
}

// Handlers returns every registered command-class handler, for
// enumeration by persistence and diagnostics.
func (n *Node) Handlers() []CommandClassHandler {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]CommandClassHandler, 0, len(n.commandClasses))
	for _, h := range n.commandClasses {
		out = append(out, h)
	}
	return out
}

// ApplyNodeInfo records the basic/generic/specific device class and splits
// the reported command class list at the CommandClassMark byte into
// supported and controlled classes (spec.md §3), returning the supported
// list so the caller can instantiate handlers for each.
func (n *Node) ApplyNodeInfo(basic, generic, specific uint8, body []uint8) []uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Basic = basic
	n.Generic = generic
	n.Specific = specific

	supported := body
	var controlled []uint8
	for i, b := range body {
		if b == zwmsg.CommandClassMark {
			supported = body[:i]
			controlled = append(controlled, body[i+1:]...)
			break
		}
	}
	n.controlCommandClasses = controlled
	return supported
}

// HandleApplicationCommand routes an inbound application command frame to
// the handler registered for its command class, if any.
func (n *Node) HandleApplicationCommand(commandClassID, commandID uint8, data []uint8) {
	h := n.CommandClass(commandClassID)
	if h == nil {
		return
	}
	h.HandleIncoming(commandID, data)
}

// IsSleepingCapable reports whether this node is anything other than an
// always-listening device — i.e. whether it can ever need message
// buffering (spec.md §4.3). FrequentListening (FLiRS) nodes and
// controller-class entries are reachable without a wake-up handshake and so
// are never sleeping-capable, even though they aren't Listening either.
func (n *Node) IsSleepingCapable() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.Listening || n.FrequentListening || n.ControllerClass {
		return false
	}
	return true
}

// IsAsleep reports whether the node is currently unreachable and should
// have outgoing messages redirected to its buffer rather than queued
// (spec.md §4.3). A listening, frequently-listening or controller-class
// node is never asleep; a sleeping-capable node with no WakeUp handler
// registered yet is conservatively treated as asleep.
func (n *Node) IsAsleep() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.Listening || n.FrequentListening || n.ControllerClass {
		return false
	}
	if n.wakeUp == nil {
		return true
	}
	return !n.wakeUp.IsAwake()
}

// BufferAppend adds item to the node's sleeping buffer, unconditionally
// dropping a WakeUp No More Information message rather than buffering it
// (spec.md §4.3 edge case: such a message would never again make sense
// once replayed after the node wakes).
func (n *Node) BufferAppend(item queue.Item) {
	if item.Message != nil && item.Message.IsWakeUpNoMoreInformation() {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sleeping = append(n.sleeping, item)
}

// DrainBuffer removes and returns every buffered item, in order, for
// splicing onto the WakeUp queue once the node announces it is awake
// (spec.md §4.3).
func (n *Node) DrainBuffer() []queue.Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	items := n.sleeping
	n.sleeping = nil
	return items
}

// BufferLen reports how many messages are currently buffered for this node.
func (n *Node) BufferLen() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sleeping)
}
