// SPDX-License-Identifier: Apache-2.0
// Package transport defines the byte-stream endpoint the driver's Framer
// reads and writes, and the retrying open (OpenWithBackoff). The opening
// handshake that primes a fresh connection is run by package driver.
package transport

import (
	"context"
	"time"
)

// Transport is the byte-stream endpoint contract of spec.md §6: open/close,
// bounded read/write, and a way to be told how many bytes the next read
// should expect (the driver's reader sets it to 1 once and reads byte by
// byte).
type Transport interface {
	// Open establishes the connection. Calling Open on an already-open
	// Transport is a no-op.
	Open(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// Read blocks until at least one byte is available or ctx is done, and
	// fills as much of buf as is immediately available.
	Read(ctx context.Context, buf []byte) (int, error)

	// Write writes b in full.
	Write(b []byte) error

	// SetReadThreshold hints the minimum number of bytes the next Read call
	// should try to satisfy before returning, letting a length-prefixed body
	// read arrive in one syscall where the underlying transport supports it.
	SetReadThreshold(n int)
}

// backoffDelay is spec.md §7's transport-open retry policy: 5s spacing
// for the first ~25 attempts, then 30s, until maxAttempts is exhausted.
// maxAttempts == 0 means unlimited (DriverMaxAttempts option semantics).
func backoffDelay(attempt int) time.Duration {
	if attempt < 25 {
		return 5 * time.Second
	}
	return 30 * time.Second
}

// OpenWithBackoff retries t.Open using the exponential-ish schedule of
// spec.md §7 until it succeeds, ctx is cancelled, or maxAttempts (0 =
// unlimited) is exhausted, in which case it returns the last error.
func OpenWithBackoff(ctx context.Context, t Transport, maxAttempts int) error {
	var lastErr error
	for attempt := 0; maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		if err := t.Open(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return lastErr
}
