package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"floorbank/core/events"
	"floorbank/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// Broadcaster fans rendered engine events out to live subscribers. A
// subscriber that falls behind by more than its buffer is disconnected.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	ch      chan types.Event
	dropped chan struct{}
	once    sync.Once
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]*subscriber)}
}

// Emit implements events.Emitter. It never blocks.
func (b *Broadcaster) Emit(evt events.Event) {
	if b == nil || evt == nil {
		return
	}
	renderable, ok := evt.(events.Renderable)
	if !ok {
		return
	}
	rendered := renderable.Event()
	if rendered == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- *rendered:
		default:
			sub.once.Do(func() { close(sub.dropped) })
			delete(b.subs, id)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called once the caller stops reading.
func (b *Broadcaster) Subscribe() (<-chan types.Event, <-chan struct{}, func()) {
	sub := &subscriber{ch: make(chan types.Event, subscriberBuffer), dropped: make(chan struct{})}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
	return sub.ch, sub.dropped, cancel
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.StreamOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, dropped, cancel := s.stream.Subscribe()
	defer cancel()
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-dropped:
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case evt := <-updates:
			if filter != "" && evt.Type != filter {
				continue
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				if websocket.CloseStatus(err) == -1 {
					s.logger.Debug("vaultd: event stream write failed", slog.Any("error", err))
				}
				return
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
