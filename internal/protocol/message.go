// Package protocol defines the signaling messages exchanged over per-peer
// control channels. The wire format is one flat JSON object per message;
// Type discriminates the union and Timestamp is required on every message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Type string

const (
	TypeUsername            Type = "username"
	TypeRequestUsername     Type = "request-username"
	TypePeerList            Type = "peer-list"
	TypeRequestPeerList     Type = "request-peer-list"
	TypeNewPeer             Type = "new-peer"
	TypePeerDisconnect      Type = "peer-disconnect"
	TypeScreenStatus        Type = "screen-sharing-status"
	TypeScreenStream        Type = "screen-sharing-stream"
	TypeScreenStarted       Type = "screen-share-started"
	TypeStreamMetadata      Type = "stream-metadata"
	TypeRequestScreen       Type = "request-screen-stream"
	TypeRequestUpdate       Type = "request-stream-update"
	TypeCameraRestored      Type = "camera-stream-restored"
	TypeReconnectAfterShare Type = "reconnect-after-screen-share"
	TypeFullReconnect       Type = "request-full-reconnect"
	TypeChat                Type = "chat-message"
	TypeRecordingStatus     Type = "recording-status"
)

// Types lists every known message type exactly once.
var Types = []Type{
	TypeUsername,
	TypeRequestUsername,
	TypePeerList,
	TypeRequestPeerList,
	TypeNewPeer,
	TypePeerDisconnect,
	TypeScreenStatus,
	TypeScreenStream,
	TypeScreenStarted,
	TypeStreamMetadata,
	TypeRequestScreen,
	TypeRequestUpdate,
	TypeCameraRestored,
	TypeReconnectAfterShare,
	TypeFullReconnect,
	TypeChat,
	TypeRecordingStatus,
}

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrNoTimestamp  = errors.New("missing timestamp")
	ErrMissingField = errors.New("missing required field")
)

// Message is the flat wire envelope. Fields beyond Type and Timestamp are
// populated per type; use the constructors rather than raw literals.
type Message struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`

	PeerID        string   `json:"peerId,omitempty"`
	Username      string   `json:"username,omitempty"`
	Peers         []string `json:"peers,omitempty"`
	IsSharing     *bool    `json:"isSharing,omitempty"`
	StreamType    string   `json:"streamType,omitempty"`
	SharingPeerID string   `json:"sharingPeerId,omitempty"`
	Urgent        bool     `json:"urgent,omitempty"`
	ForceRefresh  bool     `json:"forceRefresh,omitempty"`
	Sender        string   `json:"sender,omitempty"`
	Text          string   `json:"text,omitempty"`
	IsRecording   *bool    `json:"isRecording,omitempty"`
	Host          string   `json:"host,omitempty"`
}

func stamp() int64 { return time.Now().UnixMilli() }

func boolp(b bool) *bool { return &b }

func NewUsername(peer, name string) Message {
	return Message{Type: TypeUsername, Timestamp: stamp(), PeerID: peer, Username: name}
}

func NewRequestUsername(peer string) Message {
	return Message{Type: TypeRequestUsername, Timestamp: stamp(), PeerID: peer}
}

func NewPeerList(peers []string) Message {
	return Message{Type: TypePeerList, Timestamp: stamp(), Peers: peers}
}

func NewRequestPeerList() Message {
	return Message{Type: TypeRequestPeerList, Timestamp: stamp()}
}

func NewNewPeer(peer string) Message {
	return Message{Type: TypeNewPeer, Timestamp: stamp(), PeerID: peer}
}

func NewPeerDisconnect(peer string) Message {
	return Message{Type: TypePeerDisconnect, Timestamp: stamp(), PeerID: peer}
}

func NewScreenStatus(peer string, sharing bool, streamType string) Message {
	return Message{Type: TypeScreenStatus, Timestamp: stamp(), PeerID: peer, IsSharing: boolp(sharing), StreamType: streamType}
}

func NewScreenStream(peer string) Message {
	return Message{Type: TypeScreenStream, Timestamp: stamp(), PeerID: peer}
}

func NewScreenStarted(sharer string) Message {
	return Message{Type: TypeScreenStarted, Timestamp: stamp(), SharingPeerID: sharer}
}

func NewStreamMetadata(peer, streamType string) Message {
	return Message{Type: TypeStreamMetadata, Timestamp: stamp(), PeerID: peer, StreamType: streamType}
}

func NewRequestScreen(peer string, urgent bool) Message {
	return Message{Type: TypeRequestScreen, Timestamp: stamp(), PeerID: peer, Urgent: urgent}
}

func NewRequestUpdate(peer string, urgent, forceRefresh bool) Message {
	return Message{Type: TypeRequestUpdate, Timestamp: stamp(), PeerID: peer, Urgent: urgent, ForceRefresh: forceRefresh}
}

func NewCameraRestored(peer string) Message {
	return Message{Type: TypeCameraRestored, Timestamp: stamp(), PeerID: peer}
}

func NewReconnectAfterShare(peer string) Message {
	return Message{Type: TypeReconnectAfterShare, Timestamp: stamp(), PeerID: peer}
}

func NewFullReconnect() Message {
	return Message{Type: TypeFullReconnect, Timestamp: stamp()}
}

func NewChat(sender, text string) Message {
	return Message{Type: TypeChat, Timestamp: stamp(), Sender: sender, Text: text}
}

func NewRecordingStatus(recording bool, host string) Message {
	return Message{Type: TypeRecordingStatus, Timestamp: stamp(), IsRecording: boolp(recording), Host: host}
}

// Sharing reads the isSharing flag, defaulting to false when absent.
func (m Message) Sharing() bool {
	return m.IsSharing != nil && *m.IsSharing
}

// Recording reads the isRecording flag, defaulting to false when absent.
func (m Message) Recording() bool {
	return m.IsRecording != nil && *m.IsRecording
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates one wire message.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the envelope and the per-type required fields.
func (m Message) Validate() error {
	if !known(m.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.Timestamp <= 0 {
		return ErrNoTimestamp
	}
	switch m.Type {
	case TypeUsername:
		if m.Username == "" || m.PeerID == "" {
			return fmt.Errorf("%w: username needs username and peerId", ErrMissingField)
		}
	case TypeRequestUsername, TypeNewPeer, TypePeerDisconnect, TypeScreenStream,
		TypeCameraRestored, TypeReconnectAfterShare:
		if m.PeerID == "" {
			return fmt.Errorf("%w: %s needs peerId", ErrMissingField, m.Type)
		}
	case TypeScreenStatus:
		if m.PeerID == "" || m.IsSharing == nil {
			return fmt.Errorf("%w: screen-sharing-status needs peerId and isSharing", ErrMissingField)
		}
	case TypeScreenStarted:
		if m.SharingPeerID == "" {
			return fmt.Errorf("%w: screen-share-started needs sharingPeerId", ErrMissingField)
		}
	case TypeStreamMetadata:
		if m.PeerID == "" || m.StreamType == "" {
			return fmt.Errorf("%w: stream-metadata needs peerId and streamType", ErrMissingField)
		}
	case TypeChat:
		if m.Sender == "" {
			return fmt.Errorf("%w: chat-message needs sender", ErrMissingField)
		}
	case TypeRecordingStatus:
		if m.IsRecording == nil || m.Host == "" {
			return fmt.Errorf("%w: recording-status needs isRecording and host", ErrMissingField)
		}
	}
	return nil
}

func known(t Type) bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}
