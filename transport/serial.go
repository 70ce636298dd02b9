// SPDX-License-Identifier: Apache-2.0
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// defaultBaud is the Serial API's fixed baud rate.
const defaultBaud = 115200

// readTimeout bounds each underlying serial read so Read can honour ctx
// cancellation even with nothing arriving on the wire, following the
// teacher's serialPortReadTimeout convention.
const readTimeout = 200 * time.Millisecond

// SerialTransport is a Transport backed by a physical or USB-emulated
// serial port via github.com/tarm/serial, grounded on
// controller.Controller.Open's serial.Config construction.
type SerialTransport struct {
	// Path is the OS device path, e.g. "/dev/ttyACM0".
	Path string

	mu   sync.Mutex
	port *serial.Port
}

// Open configures and opens the serial port at 115200 8N1, flushing any
// stale buffered bytes exactly as the teacher's Controller.Open does.
func (s *SerialTransport) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	cfg := &serial.Config{Name: s.Path, Baud: defaultBaud, ReadTimeout: readTimeout}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.Path, err)
	}

	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("transport: flush %s: %w", s.Path, err)
	}

	s.port = port
	return nil
}

// Close closes the underlying port. Safe to call when not open.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Read performs one bounded read; ctx cancellation is honoured between
// syscalls (the underlying tarm/serial port has no native context support),
// matching the "cancellation honoured between any two transport operations"
// contract of spec.md §5.
func (s *SerialTransport) Read(ctx context.Context, buf []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return 0, fmt.Errorf("transport: not open")
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	n, err := port.Read(buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Write writes b in full, retrying short writes as the teacher's writeFully
// does.
func (s *SerialTransport) Write(b []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return fmt.Errorf("transport: not open")
	}

	written := 0
	for written < len(b) {
		n, err := port.Write(b[written:])
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		written += n
	}
	return nil
}

// SetReadThreshold is a no-op for tarm/serial, which has no notion of a
// minimum-bytes-before-return read; the Framer compensates by looping Read
// calls until it has the bytes it needs.
func (s *SerialTransport) SetReadThreshold(int) {}
