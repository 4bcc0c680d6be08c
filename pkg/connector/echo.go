// Copyright 2024-2026 Aiku AI

package connector

import "sync"

// EchoSuppressor tracks outbound image references sent through the secondary
// web-session transport, which has no native sent-confirmation event. When
// the network reports the image back as an incoming echo on the primary
// channel, the matching entry is consumed and the echo is dropped instead of
// delivered twice. A miss delivers normally: one duplicate is preferred over
// silently dropping a real message.
//
// Matching removes the first entry only. If two identical references are ever
// pending and the network echoes them out of send order, they are consumed in
// queue order; the references are interchangeable so this is harmless.
type EchoSuppressor struct {
	mu      sync.Mutex
	pending []string
}

// MarkPending records an outbound image reference awaiting its echo.
func (e *EchoSuppressor) MarkPending(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, ref)
}

// ConsumeIfPending removes the first matching entry and reports whether one
// was found.
func (e *EchoSuppressor) ConsumeIfPending(ref string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.pending {
		if p == ref {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}

// PendingCount returns the number of outstanding references.
func (e *EchoSuppressor) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
