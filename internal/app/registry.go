package app

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// peerLink is the registry record for one peer id: the channels we hold
// to it plus bookkeeping to spot stale async completions.
type peerLink struct {
	id       domain.PeerID
	control  core.ControlChannel
	camera   core.MediaChannel
	screen   core.MediaChannel
	gen      uint64
	lastSeen time.Time
}

// Registry is the single source of truth for "do we have a path to peer
// X". Only the orchestrator goroutine touches it, so there is no lock;
// async completions revalidate against Gen before applying results.
type Registry struct {
	links map[domain.PeerID]*peerLink
	log   zerolog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		links: make(map[domain.PeerID]*peerLink),
		log:   log.With().Str("module", "app.registry").Logger(),
	}
}

func (r *Registry) ensure(id domain.PeerID) *peerLink {
	if l, ok := r.links[id]; ok {
		return l
	}
	l := &peerLink{id: id, gen: 1, lastSeen: time.Now()}
	r.links[id] = l
	r.log.Debug().Str("peer", id.String()).Msg("entry created")
	return l
}

func (r *Registry) Has(id domain.PeerID) bool {
	_, ok := r.links[id]
	return ok
}

func (r *Registry) HasControl(id domain.PeerID) bool {
	l, ok := r.links[id]
	return ok && l.control != nil
}

func (r *Registry) HasMedia(id domain.PeerID, kind media.Kind) bool {
	l, ok := r.links[id]
	if !ok {
		return false
	}
	if kind == media.Screen {
		return l.screen != nil
	}
	return l.camera != nil
}

// Gen returns the entry's generation counter, 0 when no entry exists.
// Every channel mutation bumps it; an async completion that captured an
// older value must discard its result.
func (r *Registry) Gen(id domain.PeerID) uint64 {
	if l, ok := r.links[id]; ok {
		return l.gen
	}
	return 0
}

// Touch records activity from the peer.
func (r *Registry) Touch(id domain.PeerID) {
	if l, ok := r.links[id]; ok {
		l.lastSeen = time.Now()
	}
}

func (r *Registry) LastSeen(id domain.PeerID) (time.Time, bool) {
	if l, ok := r.links[id]; ok {
		return l.lastSeen, true
	}
	return time.Time{}, false
}

// SetControl stores ch as the control channel for id, closing any
// previous one first. Last writer wins on double-dial collisions.
func (r *Registry) SetControl(id domain.PeerID, ch core.ControlChannel) {
	l := r.ensure(id)
	if l.control != nil && l.control.ChannelID() != ch.ChannelID() {
		l.control.Close()
	}
	l.control = ch
	l.gen++
	l.lastSeen = time.Now()
	r.log.Debug().Str("peer", id.String()).Str("channel", ch.ChannelID()).Msg("control bound")
}

func (r *Registry) Control(id domain.PeerID) (core.ControlChannel, bool) {
	l, ok := r.links[id]
	if !ok || l.control == nil {
		return nil, false
	}
	return l.control, true
}

// SetMedia stores ch under the kind's slot for id. The previous channel
// of the same kind is closed first: at most one live channel per
// (peer, kind) at any time. kind may differ from the channel's own tag
// when a control message announced the stream's role in advance.
func (r *Registry) SetMedia(id domain.PeerID, kind media.Kind, ch core.MediaChannel) {
	l := r.ensure(id)
	slot := &l.camera
	if kind == media.Screen {
		slot = &l.screen
	}
	if *slot != nil && (*slot).ChannelID() != ch.ChannelID() {
		(*slot).Close()
	}
	*slot = ch
	l.gen++
	l.lastSeen = time.Now()
	r.log.Debug().Str("peer", id.String()).Str("kind", string(kind)).Str("channel", ch.ChannelID()).Msg("media bound")
}

func (r *Registry) MediaChan(id domain.PeerID, kind media.Kind) (core.MediaChannel, bool) {
	l, ok := r.links[id]
	if !ok {
		return nil, false
	}
	ch := l.camera
	if kind == media.Screen {
		ch = l.screen
	}
	if ch == nil {
		return nil, false
	}
	return ch, true
}

// CurrentControl returns the live control channel id, "" when none.
func (r *Registry) CurrentControl(id domain.PeerID) string {
	if l, ok := r.links[id]; ok && l.control != nil {
		return l.control.ChannelID()
	}
	return ""
}

// CurrentMedia returns the live media channel id of a kind, "" when none.
func (r *Registry) CurrentMedia(id domain.PeerID, kind media.Kind) string {
	if ch, ok := r.MediaChan(id, kind); ok {
		return ch.ChannelID()
	}
	return ""
}

// DropMedia closes and clears the channel of the given kind, if any.
func (r *Registry) DropMedia(id domain.PeerID, kind media.Kind) bool {
	l, ok := r.links[id]
	if !ok {
		return false
	}
	slot := &l.camera
	if kind == media.Screen {
		slot = &l.screen
	}
	if *slot == nil {
		return false
	}
	(*slot).Close()
	*slot = nil
	l.gen++
	r.log.Debug().Str("peer", id.String()).Str("kind", string(kind)).Msg("media dropped")
	return true
}

// DropControl closes and clears the control channel, if any.
func (r *Registry) DropControl(id domain.PeerID) bool {
	l, ok := r.links[id]
	if !ok || l.control == nil {
		return false
	}
	l.control.Close()
	l.control = nil
	l.gen++
	return true
}

// Remove closes every channel for id and deletes the entry.
func (r *Registry) Remove(id domain.PeerID) {
	l, ok := r.links[id]
	if !ok {
		return
	}
	if l.control != nil {
		l.control.Close()
	}
	if l.camera != nil {
		l.camera.Close()
	}
	if l.screen != nil {
		l.screen.Close()
	}
	delete(r.links, id)
	r.log.Debug().Str("peer", id.String()).Msg("entry removed")
}

// Peers returns every registered peer id in a stable order.
func (r *Registry) Peers() []domain.PeerID {
	out := make([]domain.PeerID, 0, len(r.links))
	for id := range r.links {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int { return len(r.links) }

func (r *Registry) CloseAll() {
	for id := range r.links {
		r.Remove(id)
	}
}
