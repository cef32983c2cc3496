package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

type Session struct {
	hub *Hub
	id  domain.PeerID
	log zerolog.Logger

	mu       sync.Mutex
	closed   bool
	events   chan core.Event
	controls map[string]*controlChannel
	medias   map[string]*mediaChannel
	relay    map[domain.PeerID]bool
	restarts map[domain.PeerID]int
}

func newSession(h *Hub, id domain.PeerID) *Session {
	return &Session{
		hub:      h,
		id:       id,
		log:      log.With().Str("module", "mem.session").Str("peer", id.String()).Logger(),
		events:   make(chan core.Event, 256),
		controls: make(map[string]*controlChannel),
		medias:   make(map[string]*mediaChannel),
		relay:    make(map[domain.PeerID]bool),
		restarts: make(map[domain.PeerID]int),
	}
}

func (s *Session) ID() domain.PeerID { return s.id }

func (s *Session) OpenControl(_ context.Context, peer domain.PeerID) (core.ControlChannel, error) {
	target, err := s.hub.lookup(s.id, peer)
	if err != nil {
		return nil, err
	}
	id := s.hub.channelID("mem-ctrl")
	local := &controlChannel{sess: s, peer: peer, id: id}
	remote := &controlChannel{sess: target, peer: s.id, id: id}
	local.other = remote
	remote.other = local
	if err := s.addControl(local); err != nil {
		return nil, err
	}
	if err := target.addControl(remote); err != nil {
		s.removeControl(id)
		return nil, err
	}
	target.deliver(core.IncomingControl{Channel: remote})
	return local, nil
}

func (s *Session) OpenMedia(_ context.Context, peer domain.PeerID, local *media.Stream, opts core.MediaOptions) (core.MediaChannel, error) {
	target, err := s.hub.lookup(s.id, peer)
	if err != nil {
		return nil, err
	}
	var answer *media.Stream
	if p := s.hub.provider(peer); p != nil {
		answer = p(opts.Kind)
	}
	if answer == nil {
		answer = media.NewStream(s.hub.channelID("mem-silent"), opts.Kind)
	}
	id := s.hub.channelID("mem-media")
	caller := &mediaChannel{sess: s, peer: peer, id: id, kind: opts.Kind, local: local, remote: answer}
	callee := &mediaChannel{sess: target, peer: s.id, id: id, kind: opts.Kind, local: answer, remote: local}
	caller.other = callee
	callee.other = caller
	if err := s.addMedia(caller); err != nil {
		return nil, err
	}
	if err := target.addMedia(callee); err != nil {
		s.removeMedia(id)
		return nil, err
	}
	caller.startPump()
	target.deliver(core.IncomingMedia{Channel: callee})
	return caller, nil
}

// Restart stands in for transport-level renegotiation: it succeeds when
// the link is up and fails when it is severed, and counts either way so
// tests can assert on it.
func (s *Session) Restart(peer domain.PeerID) error {
	s.mu.Lock()
	s.restarts[peer]++
	s.mu.Unlock()
	if !s.hub.linkUp(s.id, peer) {
		return fmt.Errorf("restart %s: link down", peer)
	}
	return nil
}

func (s *Session) ForceRelay(peer domain.PeerID) {
	s.mu.Lock()
	s.relay[peer] = true
	s.mu.Unlock()
	s.log.Debug().Str("target", peer.String()).Msg("relay forced")
}

// RelayForced reports whether ForceRelay was called for peer.
func (s *Session) RelayForced(peer domain.PeerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay[peer]
}

// Restarts reports how many times Restart was attempted toward peer.
func (s *Session) Restarts(peer domain.PeerID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts[peer]
}

func (s *Session) Events() <-chan core.Event { return s.events }

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	controls := make([]*controlChannel, 0, len(s.controls))
	for _, c := range s.controls {
		controls = append(controls, c)
	}
	medias := make([]*mediaChannel, 0, len(s.medias))
	for _, m := range s.medias {
		medias = append(medias, m)
	}
	s.mu.Unlock()
	for _, c := range controls {
		c.Close()
	}
	for _, m := range medias {
		m.Close()
	}
	s.hub.unregister(s.id, s)
	s.log.Debug().Msg("session closed")
}

func (s *Session) addControl(c *controlChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s closed", s.id)
	}
	s.controls[c.id] = c
	return nil
}

func (s *Session) removeControl(id string) {
	s.mu.Lock()
	delete(s.controls, id)
	s.mu.Unlock()
}

func (s *Session) addMedia(m *mediaChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session %s closed", s.id)
	}
	s.medias[m.id] = m
	return nil
}

func (s *Session) removeMedia(id string) {
	s.mu.Lock()
	delete(s.medias, id)
	s.mu.Unlock()
}

// dropChannelsTo closes every channel that targets peer, used when the
// hub severs a link.
func (s *Session) dropChannelsTo(peer domain.PeerID) {
	s.mu.Lock()
	var victims []interface{ Close() }
	for _, c := range s.controls {
		if c.peer == peer {
			victims = append(victims, c)
		}
	}
	for _, m := range s.medias {
		if m.peer == peer {
			victims = append(victims, m)
		}
	}
	s.mu.Unlock()
	for _, v := range victims {
		v.Close()
	}
}

// deliver never blocks; a full event queue drops the event, mirroring
// how the WebRTC adapter sheds load.
func (s *Session) deliver(ev core.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Msg("event queue full, dropping")
	}
}
