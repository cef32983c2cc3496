package mem

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// pumpInterval is how often an open media channel refreshes stream
// liveness, standing in for continuous packet arrival.
const pumpInterval = 250 * time.Millisecond

type controlChannel struct {
	sess   *Session
	peer   domain.PeerID
	id     string
	other  *controlChannel
	closed atomic.Bool
}

func (c *controlChannel) Peer() domain.PeerID { return c.peer }
func (c *controlChannel) ChannelID() string   { return c.id }

func (c *controlChannel) TrySend(f core.Frame) error {
	if c.closed.Load() {
		return fmt.Errorf("control %s closed", c.id)
	}
	if !c.sess.hub.linkUp(c.sess.id, c.peer) {
		return fmt.Errorf("link to %s down", c.peer)
	}
	data := make(core.Frame, len(f))
	copy(data, f)
	c.other.sess.deliver(core.ControlMessage{Peer: c.other.peer, ChannelID: c.id, Data: data})
	return nil
}

func (c *controlChannel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sess.removeControl(c.id)
	c.sess.deliver(core.ControlClosed{Peer: c.peer, ChannelID: c.id})
	c.other.closeFromRemote()
}

func (c *controlChannel) closeFromRemote() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.sess.removeControl(c.id)
	c.sess.deliver(core.ControlClosed{Peer: c.peer, ChannelID: c.id})
}

type mediaChannel struct {
	sess   *Session
	peer   domain.PeerID
	id     string
	kind   media.Kind
	local  *media.Stream
	remote *media.Stream
	other  *mediaChannel
	closed atomic.Bool
}

func (m *mediaChannel) Peer() domain.PeerID   { return m.peer }
func (m *mediaChannel) ChannelID() string     { return m.id }
func (m *mediaChannel) Kind() media.Kind      { return m.kind }
func (m *mediaChannel) Remote() *media.Stream { return m.remote }

// startPump keeps both carried streams looking alive while the channel
// is open. One pump per channel pair, started on the caller end.
func (m *mediaChannel) startPump() {
	go func() {
		t := time.NewTicker(pumpInterval)
		defer t.Stop()
		for range t.C {
			if m.closed.Load() || m.other.closed.Load() {
				return
			}
			if m.local != nil {
				m.local.Touch()
			}
			if m.remote != nil {
				m.remote.Touch()
			}
		}
	}()
}

func (m *mediaChannel) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.sess.removeMedia(m.id)
	m.sess.deliver(core.MediaClosed{Peer: m.peer, ChannelID: m.id, Kind: m.kind})
	m.other.closeFromRemote()
}

func (m *mediaChannel) closeFromRemote() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.sess.removeMedia(m.id)
	m.sess.deliver(core.MediaClosed{Peer: m.peer, ChannelID: m.id, Kind: m.kind})
}
