// SPDX-License-Identifier: Apache-2.0
// Package txn implements the Transaction Engine of spec.md §4.2: at most one
// outstanding Message at a time, ACK/response/callback matching, and bounded
// retry on timeout, NAK or CAN.
package txn

import (
	"errors"
	"time"

	"github.com/gozwave/core/frame"
	"github.com/gozwave/core/message"
	"github.com/gozwave/core/zwmsg"
)

// MaxTries is the maximum number of send attempts for a single Message
// before it is dropped (invariant P4).
const MaxTries = 3

// RetryTimeout is how long the engine waits for an ACK, response or
// callback before re-writing the current message's wire buffer.
const RetryTimeout = 2000 * time.Millisecond

// ErrInFlight is returned by Arm when a message is already outstanding —
// the caller (the scheduler) must not have dequeued a second item while a
// transaction is live (invariant P1).
var ErrInFlight = errors.New("txn: transaction already in flight")

// Stats receives counters the engine updates as a side effect of driving a
// transaction, so callers (driver.Statistics) don't need Engine to know
// their concrete shape.
type Stats interface {
	IncRetries()
	IncDropped()
	IncWriteCnt()
	IncACKCnt()
	IncNAKCnt()
	IncCANCnt()
}

// Engine holds the single shared transaction state of spec.md §3. All
// methods assume the caller holds the driver's send mutex; Engine performs
// no I/O itself beyond invoking the write callback passed to Arm/retry
// paths, keeping the "never held while performing I/O" rule (spec.md §5)
// the caller's responsibility for anything beyond that single write.
type Engine struct {
	waitingForAck          bool
	expectedCallbackID     uint8
	expectedReplyFunction  uint8
	expectedCommandClassID uint8
	expectedNodeID         uint8
	current                *message.Message
	retryDeadline          time.Time

	stats Stats
}

// New returns an idle Engine.
func New(stats Stats) *Engine {
	return &Engine{stats: stats}
}

// InFlight reports whether a message is currently outstanding (P1: iff any
// of waitingForAck/expectedCallbackID/expectedReplyFunction hold).
func (e *Engine) InFlight() bool {
	return e.current != nil
}

// Current returns the in-flight message, or nil.
func (e *Engine) Current() *message.Message {
	return e.current
}

// RetryDeadline returns when the current attempt should be considered
// timed out. Only meaningful while InFlight().
func (e *Engine) RetryDeadline() time.Time {
	return e.retryDeadline
}

// checkInvariant panics in tests/development builds if P1 is violated; kept
// cheap enough to leave in production too.
func (e *Engine) checkInvariant() {
	hasExpectation := e.waitingForAck || e.expectedCallbackID != 0 || e.expectedReplyFunction != 0
	if (e.current != nil) != hasExpectation {
		panic("txn: invariant P1 violated: current_message presence disagrees with pending expectations")
	}
}

// Arm starts a new transaction for msg: copies its expectations into the
// shared state, writes its wire buffer via write, and sets the retry
// deadline. Returns ErrInFlight if a transaction is already outstanding.
func (e *Engine) Arm(msg *message.Message, now time.Time, write func([]byte) error) error {
	if e.InFlight() {
		return ErrInFlight
	}

	wire, err := msg.Finalize()
	if err != nil {
		return err
	}

	e.current = msg
	e.waitingForAck = true
	e.expectedCallbackID = msg.ExpectedCallbackID
	e.expectedReplyFunction = msg.ExpectedReplyFunction
	e.expectedCommandClassID = msg.ExpectedCommandClassID
	e.expectedNodeID = msg.ExpectedNodeID

	if err := write(wire); err != nil {
		e.reset()
		return err
	}
	msg.SendAttempts++
	e.stats.IncWriteCnt()
	e.retryDeadline = now.Add(RetryTimeout)

	e.checkInvariant()
	return nil
}

// reset clears all shared transaction state (used on completion, drop, a
// failed write in Arm, and Abandon).
func (e *Engine) reset() {
	e.current = nil
	e.waitingForAck = false
	e.expectedCallbackID = 0
	e.expectedReplyFunction = 0
	e.expectedCommandClassID = 0
	e.expectedNodeID = 0
	e.retryDeadline = time.Time{}
}

// Abandon clears the transaction unconditionally, without treating it as a
// success or a retry — used by driver shutdown, which abandons the
// in-flight transaction. Sleeping-redirection does not call it: it only
// moves a message whose transaction has already closed or been dropped.
func (e *Engine) Abandon() *message.Message {
	msg := e.current
	e.reset()
	return msg
}

// OnAck processes an inbound ACK byte: clears waitingForAck, and closes the
// transaction if no callback or reply is still pending. Returns the
// completed message, or nil if the transaction stays open awaiting a
// response/callback.
func (e *Engine) OnAck() *message.Message {
	e.stats.IncACKCnt()
	if !e.InFlight() {
		return nil
	}
	e.waitingForAck = false
	if e.expectedCallbackID == 0 && e.expectedReplyFunction == 0 {
		msg := e.current
		e.reset()
		return msg
	}
	e.checkInvariant()
	return nil
}

// FrameSource carries the routing facts the engine needs from an inbound
// RESPONSE/REQUEST frame beyond its raw bytes: which node an
// APPLICATION_COMMAND frame came from, its command-class byte (both zero if
// not applicable), and — for a REQUEST — its callback id (the frame's third
// byte, per spec.md §4.2).
type FrameSource struct {
	SourceNodeID    uint8
	CommandClassID  uint8
	RequestCallback uint8
	HasCallback     bool
}

// OnFrame matches an inbound frame against the current expectations
// (spec.md §4.2 step 4). Returns the completed message once every pending
// expectation has closed, or nil if the transaction is still open or the
// frame did not apply to it at all.
func (e *Engine) OnFrame(f *frame.Frame, src FrameSource) *message.Message {
	if !e.InFlight() {
		return nil
	}

	if f.Type == frame.Response && e.expectedReplyFunction != 0 && f.Function == e.expectedReplyFunction {
		if e.expectedReplyFunction == zwmsg.ApplicationCommandHandler {
			if src.SourceNodeID != e.expectedNodeID || src.CommandClassID != e.expectedCommandClassID {
				return nil // not our application-command reply
			}
		}
		e.expectedReplyFunction = 0
	} else if f.Type == frame.Request && src.HasCallback && e.expectedCallbackID != 0 && src.RequestCallback == e.expectedCallbackID {
		e.expectedCallbackID = 0
	} else {
		return nil // protocol violation: unexpected opcode / callback mismatch — ignore, don't close
	}

	if e.expectedReplyFunction == 0 && e.expectedCallbackID == 0 && !e.waitingForAck {
		msg := e.current
		e.reset()
		return msg
	}
	e.checkInvariant()
	return nil
}

// TimeoutResult is returned by OnTimeout to tell the caller what happened
// and, on a drop, hand back the abandoned message for notification
// purposes.
type TimeoutResult struct {
	Retried bool
	Dropped bool
	Message *message.Message
}

// OnTimeout handles the current message's retry deadline elapsing
// (spec.md §4.2 step 5): re-writes the same buffer if attempts remain,
// otherwise drops the message and clears state.
func (e *Engine) OnTimeout(now time.Time, write func([]byte) error) (TimeoutResult, error) {
	if !e.InFlight() {
		return TimeoutResult{}, nil
	}

	if e.current.SendAttempts >= MaxTries {
		msg := e.current
		e.reset()
		e.stats.IncDropped()
		return TimeoutResult{Dropped: true, Message: msg}, nil
	}

	wire := e.current.Wire()
	if err := write(wire); err != nil {
		return TimeoutResult{}, err
	}
	e.current.SendAttempts++
	e.stats.IncRetries()
	e.stats.IncWriteCnt()
	e.waitingForAck = true
	e.retryDeadline = now.Add(RetryTimeout)

	return TimeoutResult{Retried: true}, nil
}

// OnNakOrCan treats a NAK or CAN signal byte as an immediate retry
// opportunity for the current message (spec.md §4.1/§4.2 step 6): same
// message, one more attempt counted, no need to wait out the retry
// deadline.
func (e *Engine) OnNakOrCan(isCan bool, now time.Time, write func([]byte) error) (TimeoutResult, error) {
	if isCan {
		e.stats.IncCANCnt()
	} else {
		e.stats.IncNAKCnt()
	}
	if !e.InFlight() {
		return TimeoutResult{}, nil
	}
	return e.OnTimeout(now, write)
}
