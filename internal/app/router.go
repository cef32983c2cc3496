package app

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/protocol"
)

// HandlerFunc handles one decoded message from one peer.
type HandlerFunc func(from domain.PeerID, msg protocol.Message)

type route struct {
	match  func(protocol.Message) bool
	handle HandlerFunc
}

// Router dispatches inbound control messages. Routes are evaluated in
// registration order and matching is not exclusive: every route whose
// predicate accepts the message runs. A single message may therefore
// trigger several handlers, which the protocol relies on (a username
// update is applied locally and, on the creator, fanned out).
type Router struct {
	routes []route
	log    zerolog.Logger
}

func NewRouter() *Router {
	return &Router{log: log.With().Str("module", "app.router").Logger()}
}

// Handle registers h for every message of type t.
func (r *Router) Handle(t protocol.Type, h HandlerFunc) {
	r.routes = append(r.routes, route{
		match:  func(m protocol.Message) bool { return m.Type == t },
		handle: h,
	})
}

// HandleFunc registers h behind an arbitrary predicate.
func (r *Router) HandleFunc(match func(protocol.Message) bool, h HandlerFunc) {
	r.routes = append(r.routes, route{match: match, handle: h})
}

// Dispatch decodes raw and runs every matching route. Malformed or
// unknown messages are logged and dropped; they never break the channel.
func (r *Router) Dispatch(from domain.PeerID, raw []byte) int {
	msg, err := protocol.Decode(raw)
	if err != nil {
		r.log.Warn().Err(err).Str("peer", from.String()).Msg("dropping bad message")
		return 0
	}
	matched := 0
	for _, rt := range r.routes {
		if rt.match(msg) {
			rt.handle(from, msg)
			matched++
		}
	}
	if matched == 0 {
		r.log.Debug().Str("peer", from.String()).Str("type", string(msg.Type)).Msg("no route")
	}
	return matched
}
