// Package eventbus provides the in-process publish/subscribe backbone for the
// request workflow. A Bus is constructed explicitly and handed to the
// components that need it; there is no package-level singleton.
package eventbus

import (
	"context"
	"fmt"
	"sync"
)

// Event identifies a workflow event. The set is closed at compile time, so
// subscribing to or emitting an unknown event is impossible by construction.
type Event int

const (
	// RegistrationRequested fires when a registration request is persisted.
	RegistrationRequested Event = iota
	// RegistrationApproved fires after a registration request is approved.
	RegistrationApproved
	// RegistrationRejected fires after a registration request is rejected.
	RegistrationRejected
	// DownloadLinkRequested fires when a download-link request is persisted.
	DownloadLinkRequested
	// DownloadLinkApproved fires after a download-link request is approved.
	DownloadLinkApproved
	// DownloadLinkRejected fires after a download-link request is rejected.
	DownloadLinkRejected
	// PasswordResetRequested fires when a user asks for a password reset link.
	PasswordResetRequested
	// PasswordResetCompleted fires after a reset token is redeemed.
	PasswordResetCompleted

	eventCount
)

var eventNames = [eventCount]string{
	RegistrationRequested: "request.registration",
	RegistrationApproved:  "request.registration.approved",
	RegistrationRejected:  "request.registration.rejected",
	DownloadLinkRequested: "request.downloadLink",
	DownloadLinkApproved:  "request.downloadLink.approved",
	DownloadLinkRejected:  "request.downloadLink.rejected",

	PasswordResetRequested: "user.password.forgot",
	PasswordResetCompleted: "user.password.reset",
}

// String returns the wire name of the event.
func (e Event) String() string {
	if e < 0 || e >= eventCount {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

// Handler consumes a single event delivery. Returning an error routes it to
// the bus error callback without affecting other handlers.
type Handler func(ctx context.Context, payload any) error

// ErrorFunc receives handler errors and recovered panics.
type ErrorFunc func(event Event, err error)

type delivery struct {
	ctx     context.Context
	event   Event
	payload any
}

// Bus dispatches events to handlers on a single background goroutine.
// Handlers for one event run in registration order; Emit never blocks the
// caller beyond enqueueing.
type Bus struct {
	mu       sync.RWMutex
	handlers [eventCount][]Handler
	onError  ErrorFunc

	queue   chan delivery
	pending sync.WaitGroup
	quit    chan struct{}
	done    chan struct{}
	closed  bool
}

// defaultQueueSize bounds the dispatch backlog before Emit blocks.
const defaultQueueSize = 256

// New returns a running Bus.
func New() *Bus {
	b := &Bus{
		queue: make(chan delivery, defaultQueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// On registers a handler for the event. Handlers registered first run first.
func (b *Bus) On(event Event, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// OnError sets the callback invoked with handler errors and panics. A nil
// callback discards them.
func (b *Bus) OnError(fn ErrorFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Emit enqueues the event for asynchronous delivery. Emitting on a closed
// bus is a no-op. The queue channel itself is never closed, so an Emit racing
// Close can at worst be dropped, never panic.
func (b *Bus) Emit(ctx context.Context, event Event, payload any) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	b.pending.Add(1)
	select {
	case b.queue <- delivery{ctx: ctx, event: event, payload: payload}:
	case <-b.quit:
		b.pending.Done()
	}
}

// Wait blocks until every delivery emitted so far has been dispatched.
func (b *Bus) Wait() {
	b.pending.Wait()
}

// Close drains the queue and stops the dispatcher. The bus cannot be reused.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	// everything emitted before the flag flipped gets delivered
	b.pending.Wait()
	close(b.quit)
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for {
		select {
		case d := <-b.queue:
			b.deliver(d)
		case <-b.quit:
			for {
				select {
				case d := <-b.queue:
					b.deliver(d)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(d delivery) {
	b.mu.RLock()
	handlers := b.handlers[d.event]
	onError := b.onError
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(d, h, onError)
	}
	b.pending.Done()
}

// invoke runs one handler with panic isolation so a failing subscriber never
// takes down the dispatcher or suppresses later handlers.
func (b *Bus) invoke(d delivery, h Handler, onError ErrorFunc) {
	defer func() {
		if r := recover(); r != nil && onError != nil {
			onError(d.event, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := h(d.ctx, d.payload); err != nil && onError != nil {
		onError(d.event, err)
	}
}
