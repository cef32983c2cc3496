// Package core defines the boundary between the orchestrator and the
// transport that moves bytes between peers. Adapters implement it; the
// orchestrator never sees ICE, SDP or sockets.
package core

import (
	"context"
	"errors"

	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// Frame is a raw control payload.
type Frame []byte

// ErrPeerUnavailable reports that the dialed peer id is not registered
// with the transport. Callers use it to tell "host not found" apart from
// generic failure.
var ErrPeerUnavailable = errors.New("peer unavailable")

// Transport hands out one Session per registered peer id.
type Transport interface {
	Register(ctx context.Context, id domain.PeerID) (Session, error)
}

// Session is one registered presence on the transport. Methods are safe
// for concurrent use. Channel opens report completion via return values;
// everything initiated remotely arrives on Events.
type Session interface {
	ID() domain.PeerID

	// OpenControl opens the ordered, reliable signaling channel to peer.
	OpenControl(ctx context.Context, peer domain.PeerID) (ControlChannel, error)

	// OpenMedia opens a media channel carrying local to peer. The remote
	// stream handle fills in asynchronously as media arrives.
	OpenMedia(ctx context.Context, peer domain.PeerID, local *media.Stream, opts MediaOptions) (MediaChannel, error)

	// Restart renegotiates transport-level connectivity to peer without
	// tearing existing channels down.
	Restart(peer domain.PeerID) error

	// ForceRelay makes every later channel to peer use relayed paths only.
	ForceRelay(peer domain.PeerID)

	Events() <-chan Event
	Close()
}

type MediaOptions struct {
	Kind media.Kind
}

// ControlChannel is an ordered reliable message pipe to one peer.
// Owned by the registry; the registry must Close it.
type ControlChannel interface {
	Peer() domain.PeerID
	ChannelID() string
	TrySend(Frame) error
	Close()
}

// MediaChannel carries one stream pair to one peer.
type MediaChannel interface {
	Peer() domain.PeerID
	ChannelID() string
	Kind() media.Kind
	Remote() *media.Stream
	Close()
}
