// Package domain contains call entities without logic, just identity
// and meta-data.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// CreatorSuffix ends the peer id of the participant that opened the room.
// Every other node derives the creator's id from the room name alone.
const CreatorSuffix = "-creator"

// PeerID identifies one participant for the lifetime of a session.
type PeerID string

// CreatorPeerID is the well-known id of a room's creator.
func CreatorPeerID(room string) PeerID {
	return PeerID(room + CreatorSuffix)
}

// NewPeerID mints a joiner id for the given room.
func NewPeerID(room string) PeerID {
	return PeerID(room + "-" + uuid.NewString())
}

// IsCreator is derived from the id shape and never changes.
func (id PeerID) IsCreator() bool {
	return strings.HasSuffix(string(id), CreatorSuffix)
}

func (id PeerID) String() string { return string(id) }
