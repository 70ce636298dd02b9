// SPDX-License-Identifier: Apache-2.0
// Package message implements the Message data model of spec.md §3: a
// not-yet-sent or in-flight Serial API exchange, its finalised wire buffer,
// and the expectations the Transaction Engine must satisfy before it is
// considered complete.
package message

import (
	"github.com/gozwave/core/frame"
	"github.com/gozwave/core/zwmsg"
)

// Message is a single Serial API exchange: a target node, a request frame,
// and the engine's expectations for what closes the transaction.
type Message struct {
	// TargetNodeID is the node this message is destined for, or 0xff for the
	// controller itself / broadcast context.
	TargetNodeID uint8

	Direction uint8 // frame.Request or frame.Response
	Function  uint8 // Serial API opcode

	Payload []uint8

	// ExpectedReplyFunction, if non-zero, is the RESPONSE function id that
	// closes this message's reply expectation.
	ExpectedReplyFunction uint8

	// ExpectedIsApplicationCommand additionally requires, when
	// ExpectedReplyFunction == zwmsg.ApplicationCommandHandler, that the
	// inbound frame's source node and command-class byte match
	// ExpectedNodeID/ExpectedCommandClassID.
	ExpectedIsApplicationCommand bool
	ExpectedNodeID               uint8
	ExpectedCommandClassID       uint8

	// ExpectedCallbackID, if non-zero, is the callback byte that closes this
	// message's callback expectation.
	ExpectedCallbackID uint8

	// SendAttempts counts how many times this message's wire buffer has been
	// written to the transport. Bounded by txn.MaxTries (invariant P4).
	SendAttempts int

	wire []byte
}

// Finalize computes the message's wire buffer (SOF, length, type, function,
// payload, checksum) exactly once; repeated calls are idempotent and reuse
// the cached buffer, so retransmits resend byte-identical frames.
func (m *Message) Finalize() ([]byte, error) {
	if m.wire != nil {
		return m.wire, nil
	}

	f := &frame.Frame{Type: m.Direction, Function: m.Function, Body: m.Payload}
	wire, err := f.Encode()
	if err != nil {
		return nil, err
	}
	m.wire = wire
	return wire, nil
}

// Wire returns the cached finalised buffer, or nil if Finalize has not been
// called yet.
func (m *Message) Wire() []byte {
	return m.wire
}

// ExpectsReply reports whether this message is still awaiting either a
// RESPONSE opcode or a REQUEST callback (invariant P1/P3).
func (m *Message) ExpectsReply() bool {
	return m.ExpectedReplyFunction != 0 || m.ExpectedCallbackID != 0
}

// IsWakeUpNoMoreInformation reports whether this message is the WakeUp
// command class's "No More Information" notification — the one message the
// engine unconditionally drops instead of buffering for a sleeping node
// (spec.md §9, "Open question — WakeUp-NoMoreInformation drop rule").
func (m *Message) IsWakeUpNoMoreInformation() bool {
	return m.Function == zwmsg.SendData &&
		len(m.Payload) >= 3 &&
		m.Payload[2] == zwmsg.CommandClassWakeUp &&
		len(m.Payload) >= 4 &&
		m.Payload[3] == zwmsg.WakeUpCommandNoMoreInfo
}

// NewSendData builds a ZW_SEND_DATA Message targeting a node's command
// class, following the body layout of the teacher's
// ZWSendDataToRequestPacket: NodeID, (len(payload)+1), CommandClass,
// payload..., TransmitOptions, CallbackID.
func NewSendData(nodeID, commandClass uint8, payload []uint8, transmitOptions uint8, callbackID uint8) *Message {
	body := []uint8{nodeID, uint8(1 + len(payload)), commandClass}
	body = append(body, payload...)
	body = append(body, transmitOptions)
	if callbackID != 0 {
		body = append(body, callbackID)
	}

	return &Message{
		TargetNodeID:          nodeID,
		Direction:             frame.Request,
		Function:              zwmsg.SendData,
		Payload:               body,
		ExpectedReplyFunction: zwmsg.SendData,
		ExpectedCallbackID:    callbackID,
	}
}

// NewControllerRequest builds a bare controller-management request (no
// payload) expecting a RESPONSE of the same function id — the shape of
// GetVersion/MemoryGetID/GetControllerCapabilities/SerialAPIGetCapabilities/
// SerialAPIGetInitData in the teacher's message_request.go.
func NewControllerRequest(function uint8) *Message {
	return &Message{
		TargetNodeID:          0xff,
		Direction:             frame.Request,
		Function:              function,
		ExpectedReplyFunction: function,
	}
}

// WithApplicationCommandExpectation marks a Message as additionally
// requiring the eventual reply to be an unsolicited APPLICATION_COMMAND
// frame from a specific node and command class, rather than a RESPONSE of
// the same function — used by synchronous command-class Get/Report round
// trips.
func (m *Message) WithApplicationCommandExpectation(nodeID, commandClassID uint8) *Message {
	m.ExpectedReplyFunction = zwmsg.ApplicationCommandHandler
	m.ExpectedIsApplicationCommand = true
	m.ExpectedNodeID = nodeID
	m.ExpectedCommandClassID = commandClassID
	return m
}
