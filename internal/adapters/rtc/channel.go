package rtc

import (
	"errors"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// maxBufferedControl caps the data channel send buffer; beyond it
// TrySend reports backpressure instead of queueing more.
const maxBufferedControl = 256 * 1024

type controlChannel struct {
	sess   *Session
	conn   *peerConn
	dc     *webrtc.DataChannel
	peer   domain.PeerID
	connID string
	closed atomic.Bool
}

func newControlChannel(s *Session, conn *peerConn, dc *webrtc.DataChannel, peer domain.PeerID, connID string) *controlChannel {
	ch := &controlChannel{sess: s, conn: conn, dc: dc, peer: peer, connID: connID}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.deliver(core.ControlMessage{Peer: peer, ChannelID: connID, Data: core.Frame(msg.Data)})
	})
	dc.OnClose(func() { ch.remoteClosed() })
	conn.onClosed = func() { ch.remoteClosed() }
	return ch
}

func (c *controlChannel) Peer() domain.PeerID { return c.peer }
func (c *controlChannel) ChannelID() string   { return c.connID }

func (c *controlChannel) TrySend(f core.Frame) error {
	if c.closed.Load() {
		return errors.New("control channel closed")
	}
	if c.dc.BufferedAmount() > maxBufferedControl {
		return ErrBackpressure
	}
	return c.dc.Send(f)
}

func (c *controlChannel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sess.sendLeave(c.peer, c.connID)
	c.sess.untrack(c.connID)
	c.conn.close()
	c.sess.deliver(core.ControlClosed{Peer: c.peer, ChannelID: c.connID})
}

// remoteClosed runs when the far side or the transport killed the
// channel underneath us.
func (c *controlChannel) remoteClosed() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sess.untrack(c.connID)
	c.conn.close()
	c.sess.deliver(core.ControlClosed{Peer: c.peer, ChannelID: c.connID})
}

type mediaChannel struct {
	sess   *Session
	conn   *peerConn
	peer   domain.PeerID
	connID string
	kind   media.Kind
	remote *media.Stream
	closed atomic.Bool
}

func newMediaChannel(s *Session, conn *peerConn, peer domain.PeerID, connID string, kind media.Kind, remote *media.Stream) *mediaChannel {
	ch := &mediaChannel{sess: s, conn: conn, peer: peer, connID: connID, kind: kind, remote: remote}
	conn.onClosed = func() { ch.remoteClosed() }
	return ch
}

func (m *mediaChannel) Peer() domain.PeerID   { return m.peer }
func (m *mediaChannel) ChannelID() string     { return m.connID }
func (m *mediaChannel) Kind() media.Kind      { return m.kind }
func (m *mediaChannel) Remote() *media.Stream { return m.remote }

func (m *mediaChannel) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.remote.Close()
	m.sess.sendLeave(m.peer, m.connID)
	m.sess.untrack(m.connID)
	m.conn.close()
	m.sess.deliver(core.MediaClosed{Peer: m.peer, ChannelID: m.connID, Kind: m.kind})
}

func (m *mediaChannel) remoteClosed() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.remote.Close()
	m.sess.untrack(m.connID)
	m.conn.close()
	m.sess.deliver(core.MediaClosed{Peer: m.peer, ChannelID: m.connID, Kind: m.kind})
}
