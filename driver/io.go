// SPDX-License-Identifier: Apache-2.0
package driver

import (
	"context"
	"time"

	"github.com/gozwave/core/frame"
)

// inboundKind distinguishes the four things a byte stream can resolve to:
// a completed Frame, or one of the three single-byte flow-control signals.
type inboundKind int

const (
	inboundFrame inboundKind = iota
	inboundACK
	inboundNAK
	inboundCAN
)

type inboundEvent struct {
	kind  inboundKind
	frame *frame.Frame
}

// lengthByteDeadline and bodyDeadline are spec.md §4.1's framing timeouts:
// once a SOF is seen, the length byte must follow within 100ms, and the
// rest of the frame within 500ms of the length byte, or the partial frame is
// abandoned and the parser resyncs on the next byte.
const (
	lengthByteDeadline = 100 * time.Millisecond
	bodyDeadline       = 500 * time.Millisecond
)

// readLoop owns the transport's read side: it classifies every inbound
// byte, assembles SOF-prefixed frames through frame.Parser, answers each
// completed (or rejected) frame with an immediate ACK or NAK exactly as the
// teacher's doResponses/routeReponse pair does, and forwards the result to
// the main loop over d.inbound. Runs until ctx is done.
func (d *Driver) readLoop(ctx context.Context) {
	buf := make([]byte, 1)
	parser := &frame.Parser{}
	inFrame := false
	gotLength := false
	var frameDeadline time.Time

	d.transport.SetReadThreshold(1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.exit:
			return
		default:
		}

		readCtx := ctx
		var cancel context.CancelFunc
		if inFrame {
			readCtx, cancel = context.WithDeadline(ctx, frameDeadline)
		}
		n, err := d.transport.Read(readCtx, buf)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if inFrame {
				d.stats.IncReadAborts()
				parser.Reset()
				inFrame = false
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}
		d.stats.IncReadCnt()

		b := buf[0]
		if !inFrame {
			switch b {
			case frame.SOF:
				d.stats.IncSOFCnt()
				inFrame = true
				gotLength = false
				frameDeadline = time.Now().Add(lengthByteDeadline)
				parser.Reset()
			case frame.ACK:
				d.send(inboundEvent{kind: inboundACK})
			case frame.NAK:
				d.send(inboundEvent{kind: inboundNAK})
			case frame.CAN:
				d.send(inboundEvent{kind: inboundCAN})
			default:
				d.stats.IncOOFCnt()
			}
			continue
		}

		f, ferr := parser.Feed(b)
		if ferr != nil {
			d.stats.IncBadChecksum()
			d.writeNAK()
			inFrame = false
			continue
		}
		if f == nil {
			// The length byte extends the deadline once, to cover the rest of
			// the frame rather than just the length byte.
			if !gotLength {
				gotLength = true
				frameDeadline = time.Now().Add(bodyDeadline)
			}
			continue
		}

		inFrame = false
		d.writeACK()
		d.send(inboundEvent{kind: inboundFrame, frame: f})
	}
}

func (d *Driver) send(ev inboundEvent) {
	select {
	case d.inbound <- ev:
	case <-d.exit:
	}
}

func (d *Driver) writeACK() {
	if err := d.transport.Write([]byte{frame.ACK}); err != nil {
		d.log.WithError(err).Warn("failed to write ACK")
	}
}

func (d *Driver) writeNAK() {
	if err := d.transport.Write([]byte{frame.NAK}); err != nil {
		d.log.WithError(err).Warn("failed to write NAK")
	}
}
