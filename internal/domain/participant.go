package domain

import (
	"errors"
	"time"

	"github.com/Liergab/peercall/internal/media"
)

// MaxUsernameLen bounds display names on the wire and in the UI.
const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type TransitionState string

const (
	TransitionConnecting    TransitionState = "connecting"
	TransitionConnected     TransitionState = "connected"
	TransitionDisconnecting TransitionState = "disconnecting"
	TransitionReconnecting  TransitionState = "reconnecting"
)

// Participant is one remote peer as seen locally.
type Participant struct {
	ID            PeerID
	Username      string
	Stream        *media.Stream
	IsCreator     bool
	StreamKind    media.Kind
	ScreenSharing bool
	Transition    TransitionState
	JoinedAt      time.Time
}

// NewParticipant avoids ad-hoc struct literals in the store and derives
// the creator flag once from the id shape.
func NewParticipant(id PeerID) *Participant {
	return &Participant{
		ID:         id,
		Username:   "guest",
		IsCreator:  id.IsCreator(),
		StreamKind: media.Camera,
		Transition: TransitionConnecting,
		JoinedAt:   time.Now(),
	}
}

// ValidateUsername checks a display name without applying it anywhere.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// SetUsername validates and applies a display name, last write wins.
func (p *Participant) SetUsername(name string) error {
	if err := ValidateUsername(name); err != nil {
		return err
	}
	p.Username = name
	return nil
}

// SetStreamKind keeps the screen-sharing flag in lockstep with the kind.
func (p *Participant) SetStreamKind(k media.Kind) {
	p.StreamKind = k
	p.ScreenSharing = k == media.Screen
}

// SetScreenSharing keeps the stream kind in lockstep with the flag.
func (p *Participant) SetScreenSharing(on bool) {
	p.ScreenSharing = on
	if on {
		p.StreamKind = media.Screen
	} else {
		p.StreamKind = media.Camera
	}
}

// SetStream swaps the inbound stream reference. The transport owns the
// stream; dropping the old reference is the only release that happens here.
func (p *Participant) SetStream(s *media.Stream) {
	p.Stream = s
}
