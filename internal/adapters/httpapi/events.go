package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/app"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one event feed subscriber.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// EventFeed consumes the orchestrator event stream once and fans it out
// to every websocket subscriber.
type EventFeed struct {
	orch *app.Orchestrator
	log  zerolog.Logger

	mu   sync.Mutex
	subs map[*wsConn]struct{}
}

func NewEventFeed(orch *app.Orchestrator) *EventFeed {
	return &EventFeed{
		orch: orch,
		log:  log.With().Str("module", "httpapi.events").Logger(),
		subs: make(map[*wsConn]struct{}),
	}
}

// Run pumps orchestrator events to subscribers until ctx ends or the
// orchestrator stops.
func (f *EventFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case <-f.orch.Done():
			f.closeAll()
			return
		case ev := <-f.orch.Events():
			f.fanOut(ev)
		}
	}
}

func (f *EventFeed) fanOut(ev app.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.log.Error().Err(err).Msg("event marshal")
		return
	}
	f.mu.Lock()
	for sub := range f.subs {
		// slow subscribers drop events and catch up on the next state
		_ = sub.TrySend(data)
	}
	f.mu.Unlock()
}

func (f *EventFeed) closeAll() {
	f.mu.Lock()
	for sub := range f.subs {
		sub.Close()
	}
	f.subs = make(map[*wsConn]struct{})
	f.mu.Unlock()
}

func (f *EventFeed) add(sub *wsConn) {
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
}

func (f *EventFeed) remove(sub *wsConn) {
	f.mu.Lock()
	delete(f.subs, sub)
	f.mu.Unlock()
}

// Handle upgrades the request and streams events. The current snapshot
// is sent first so a fresh UI renders without waiting for a change.
func (f *EventFeed) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.Error().Err(err).Msg("ws upgrade")
		return
	}

	sub := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	f.add(sub)
	f.log.Info().Msg("event feed subscriber connected")

	if snap := f.orch.Snapshot(); snap != nil {
		if data, err := json.Marshal(app.Event{Kind: app.EventState, State: snap}); err == nil {
			_ = sub.TrySend(data)
		}
	}

	go f.writePump(ctx, sub)
	go f.readPump(ctx, sub)
}

func (f *EventFeed) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				f.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.log.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice the close.
func (f *EventFeed) readPump(ctx context.Context, c *wsConn) {
	defer func() {
		f.remove(c)
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
