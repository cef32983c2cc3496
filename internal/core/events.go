package core

import (
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// Event is the closed set of things a Session reports asynchronously.
type Event interface{ isEvent() }

// IncomingControl announces a control channel the remote side opened.
type IncomingControl struct {
	Channel ControlChannel
}

// IncomingMedia announces a media channel the remote side opened. The
// remote stream is reachable through the channel and may still be filling.
type IncomingMedia struct {
	Channel MediaChannel
}

// ControlMessage carries one inbound signaling payload.
type ControlMessage struct {
	Peer      domain.PeerID
	ChannelID string
	Data      Frame
}

// ControlClosed reports that a control channel went away.
type ControlClosed struct {
	Peer      domain.PeerID
	ChannelID string
}

// MediaClosed reports that a media channel went away.
type MediaClosed struct {
	Peer      domain.PeerID
	ChannelID string
	Kind      media.Kind
}

// ErrorKind classifies session errors the way callers branch on them.
type ErrorKind string

const (
	ErrorPeerUnavailable ErrorKind = "peer-unavailable"
	ErrorNetwork         ErrorKind = "network"
	ErrorServer          ErrorKind = "server-error"
)

// SessionError reports a transport-level failure not tied to a single
// channel operation.
type SessionError struct {
	Kind ErrorKind
	Peer domain.PeerID
	Err  error
}

func (IncomingControl) isEvent() {}
func (IncomingMedia) isEvent()   {}
func (ControlMessage) isEvent()  {}
func (ControlClosed) isEvent()   {}
func (MediaClosed) isEvent()     {}
func (SessionError) isEvent()    {}
