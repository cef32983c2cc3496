package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeDeadline     = 5 * time.Second
	heartbeatInterval = 15 * time.Second
	sendQueueSize     = 32
)

// brokerClient is the websocket leg to the signaling broker. Writes go
// through a send queue drained by writePump; reads arrive on readPump
// and fan into onEnvelope.
type brokerClient struct {
	self domain.PeerID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  zerolog.Logger

	onEnvelope func(envelope)
	onClosed   func(error)

	mu     sync.RWMutex
	closed bool
}

func dialBroker(ctx context.Context, url string, self domain.PeerID, onEnvelope func(envelope), onClosed func(error)) (*brokerClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &brokerClient{
		self:       self,
		conn:       conn,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		log:        log.With().Str("module", "rtc.broker").Str("peer", self.String()).Logger(),
		onEnvelope: onEnvelope,
		onClosed:   onClosed,
	}
	// announce presence before the pumps start so the broker can route
	// to us from the first envelope on
	hello, err := envelope{Type: wireOpen, Src: self.String()}.encode()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.writePump()
	go c.readPump()
	go c.heartbeat()
	c.log.Info().Str("url", url).Msg("broker connected")
	return c, nil
}

func (c *brokerClient) sendEnvelope(env envelope) error {
	data, err := env.encode()
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *brokerClient) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("broker connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *brokerClient) writePump() {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			c.log.Error().Err(err).Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Error().Err(err).Msg("writePump write error")
			return
		}
	}
}

func (c *brokerClient) readPump() {
	defer func() {
		c.log.Info().Msg("readPump closing")
		c.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.log.Error().Err(err).Msg("readPump read error")
				if c.onClosed != nil {
					c.onClosed(err)
				}
			}
			return
		}
		env, err := decodeEnvelope(data)
		if err != nil {
			c.log.Error().Err(err).Msg("bad envelope json")
			continue
		}
		c.onEnvelope(env)
	}
}

func (c *brokerClient) heartbeat() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.sendEnvelope(envelope{Type: wireHeartbeat, Src: c.self.String()}); err != nil {
				c.log.Debug().Err(err).Msg("heartbeat send failed")
			}
		}
	}
}

func (c *brokerClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	close(c.done)
	_ = c.conn.Close()
	c.mu.Unlock()
}
