// Package mem is an in-process Transport: every session lives in the
// same address space and channels are goroutine pipes. It backs tests
// and single-machine demos with the same semantics as the WebRTC
// adapter: dials to unknown peers fail with ErrPeerUnavailable, closing
// one end of a channel notifies both, and severed links stop carrying
// media until healed.
package mem

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// LocalProvider hands out the stream a session sends back when it
// answers an incoming media dial.
type LocalProvider func(kind media.Kind) *media.Stream

type linkKey struct {
	from, to domain.PeerID
}

type Hub struct {
	mu        sync.Mutex
	log       zerolog.Logger
	sessions  map[domain.PeerID]*Session
	providers map[domain.PeerID]LocalProvider
	blocked   map[linkKey]bool
	nextID    atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		log:       log.With().Str("module", "mem.hub").Logger(),
		sessions:  make(map[domain.PeerID]*Session),
		providers: make(map[domain.PeerID]LocalProvider),
		blocked:   make(map[linkKey]bool),
	}
}

// Provide sets the answering-side stream source for id. Must be wired
// before media dials toward id arrive.
func (h *Hub) Provide(id domain.PeerID, p LocalProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers[id] = p
}

// Register creates the session for id, replacing and closing any
// previous registration under the same id.
func (h *Hub) Register(_ context.Context, id domain.PeerID) (core.Session, error) {
	h.mu.Lock()
	old := h.sessions[id]
	s := newSession(h, id)
	h.sessions[id] = s
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
	h.log.Debug().Str("peer", id.String()).Msg("registered")
	return s, nil
}

// Sever cuts the link between a and b in both directions: existing
// channels close, new dials fail, restarts fail.
func (h *Hub) Sever(a, b domain.PeerID) {
	h.mu.Lock()
	h.blocked[linkKey{a, b}] = true
	h.blocked[linkKey{b, a}] = true
	sa := h.sessions[a]
	sb := h.sessions[b]
	h.mu.Unlock()
	if sa != nil {
		sa.dropChannelsTo(b)
	}
	if sb != nil {
		sb.dropChannelsTo(a)
	}
	h.log.Debug().Str("a", a.String()).Str("b", b.String()).Msg("link severed")
}

// Heal restores the link between a and b.
func (h *Hub) Heal(a, b domain.PeerID) {
	h.mu.Lock()
	delete(h.blocked, linkKey{a, b})
	delete(h.blocked, linkKey{b, a})
	h.mu.Unlock()
	h.log.Debug().Str("a", a.String()).Str("b", b.String()).Msg("link healed")
}

// Kill closes id's session abruptly, as if the process died.
func (h *Hub) Kill(id domain.PeerID) {
	h.mu.Lock()
	s := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (h *Hub) lookup(from, to domain.PeerID) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.blocked[linkKey{from, to}] {
		return nil, fmt.Errorf("link %s -> %s severed", from, to)
	}
	target, ok := h.sessions[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPeerUnavailable, to)
	}
	return target, nil
}

func (h *Hub) linkUp(from, to domain.PeerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.blocked[linkKey{from, to}]
}

func (h *Hub) provider(id domain.PeerID) LocalProvider {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.providers[id]
}

func (h *Hub) unregister(id domain.PeerID, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[id] == s {
		delete(h.sessions, id)
	}
}

func (h *Hub) channelID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, h.nextID.Add(1))
}
