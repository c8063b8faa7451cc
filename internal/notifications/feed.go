package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"biblio/internal/eventbus"
	"biblio/internal/middleware"
	"biblio/internal/observability"
)

const maxFeedConns = 100

// FeedMessage is one event as written to admin feed sockets. Payloads are
// re-marshalled through their JSON tags, so secrets tagged "-" (passwords,
// codes) never leave the process.
type FeedMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

// Feed fans workflow events out to connected admin WebSocket clients.
type Feed struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{conns: make(map[*websocket.Conn]struct{})}
}

// Subscribe attaches the feed to every workflow event on the bus.
func (f *Feed) Subscribe(bus *eventbus.Bus) {
	events := []eventbus.Event{
		eventbus.RegistrationRequested,
		eventbus.RegistrationApproved,
		eventbus.RegistrationRejected,
		eventbus.DownloadLinkRequested,
		eventbus.DownloadLinkApproved,
		eventbus.DownloadLinkRejected,
	}
	for _, event := range events {
		event := event
		bus.On(event, func(ctx context.Context, payload any) error {
			f.broadcast(ctx, event, payload)
			return nil
		})
	}
}

// Register adds a socket to the feed.
func (f *Feed) Register(conn *websocket.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) >= maxFeedConns {
		return errors.New("feed connection limit reached")
	}
	f.conns[conn] = struct{}{}
	observability.EventFeedConnections.Inc()
	return nil
}

// Unregister removes a socket from the feed.
func (f *Feed) Unregister(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conns[conn]; ok {
		delete(f.conns, conn)
		observability.EventFeedConnections.Dec()
	}
}

func (f *Feed) broadcast(ctx context.Context, event eventbus.Event, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "event feed marshal failed",
			"event", event.String(), "error", err.Error())
		return
	}
	msg, err := json.Marshal(FeedMessage{Event: event.String(), Payload: raw, Time: time.Now()})
	if err != nil {
		return
	}

	f.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for conn := range f.conns {
		conns = append(conns, conn)
	}
	f.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			f.Unregister(conn)
			conn.Close()
		}
	}
}

// Shutdown closes every connected socket.
func (f *Feed) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.conns {
		conn.Close()
		delete(f.conns, conn)
		observability.EventFeedConnections.Dec()
	}
}
