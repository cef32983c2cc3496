package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/protocol"
)

func TestConstructorsProduceValidMessages(t *testing.T) {
	msgs := map[protocol.Type]protocol.Message{
		protocol.TypeUsername:            protocol.NewUsername("room-a", "alice"),
		protocol.TypeRequestUsername:     protocol.NewRequestUsername("room-a"),
		protocol.TypePeerList:            protocol.NewPeerList([]string{"room-a", "room-b"}),
		protocol.TypeRequestPeerList:     protocol.NewRequestPeerList(),
		protocol.TypeNewPeer:             protocol.NewNewPeer("room-a"),
		protocol.TypePeerDisconnect:      protocol.NewPeerDisconnect("room-a"),
		protocol.TypeScreenStatus:        protocol.NewScreenStatus("room-a", true, "screen"),
		protocol.TypeScreenStream:        protocol.NewScreenStream("room-a"),
		protocol.TypeScreenStarted:       protocol.NewScreenStarted("room-a"),
		protocol.TypeStreamMetadata:      protocol.NewStreamMetadata("room-a", "camera"),
		protocol.TypeRequestScreen:       protocol.NewRequestScreen("room-a", true),
		protocol.TypeRequestUpdate:       protocol.NewRequestUpdate("room-a", false, true),
		protocol.TypeCameraRestored:      protocol.NewCameraRestored("room-a"),
		protocol.TypeReconnectAfterShare: protocol.NewReconnectAfterShare("room-a"),
		protocol.TypeFullReconnect:       protocol.NewFullReconnect(),
		protocol.TypeChat:                protocol.NewChat("alice", "hello"),
		protocol.TypeRecordingStatus:     protocol.NewRecordingStatus(true, "room-creator"),
	}

	assert.Len(t, msgs, len(protocol.Types), "every known type needs a constructor under test")

	for typ, m := range msgs {
		assert.Equal(t, typ, m.Type)
		assert.NoError(t, m.Validate(), "constructor for %s", typ)
		assert.Greater(t, m.Timestamp, int64(0), "constructor for %s must stamp the message", typ)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := protocol.NewScreenStatus("room-a", true, "screen")

	raw, err := protocol.Encode(in)
	assert.NoError(t, err)

	out, err := protocol.Decode(raw)
	assert.NoError(t, err)
	assert.Equal(t, protocol.TypeScreenStatus, out.Type)
	assert.Equal(t, "room-a", out.PeerID)
	assert.True(t, out.Sharing())
	assert.Equal(t, "screen", out.StreamType)
	assert.Equal(t, in.Timestamp, out.Timestamp)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := protocol.Decode([]byte("{not json"))
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := protocol.Decode([]byte(`{"type":"teleport","timestamp":1}`))
		assert.ErrorIs(t, err, protocol.ErrUnknownType)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		_, err := protocol.Decode([]byte(`{"type":"chat-message","sender":"alice"}`))
		assert.ErrorIs(t, err, protocol.ErrNoTimestamp)
	})
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		m    protocol.Message
	}{
		{"username without name", protocol.Message{Type: protocol.TypeUsername, Timestamp: 1, PeerID: "p"}},
		{"username without peer", protocol.Message{Type: protocol.TypeUsername, Timestamp: 1, Username: "alice"}},
		{"new-peer without peer", protocol.Message{Type: protocol.TypeNewPeer, Timestamp: 1}},
		{"peer-disconnect without peer", protocol.Message{Type: protocol.TypePeerDisconnect, Timestamp: 1}},
		{"screen status without flag", protocol.Message{Type: protocol.TypeScreenStatus, Timestamp: 1, PeerID: "p"}},
		{"screen started without sharer", protocol.Message{Type: protocol.TypeScreenStarted, Timestamp: 1}},
		{"stream metadata without kind", protocol.Message{Type: protocol.TypeStreamMetadata, Timestamp: 1, PeerID: "p"}},
		{"chat without sender", protocol.Message{Type: protocol.TypeChat, Timestamp: 1, Text: "hi"}},
		{"recording status without host", protocol.Message{Type: protocol.TypeRecordingStatus, Timestamp: 1, IsRecording: new(bool)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.m.Validate(), protocol.ErrMissingField)
		})
	}
}

func TestOptionalFlagsSurviveTheWire(t *testing.T) {
	t.Run("absent bool pointers read as false", func(t *testing.T) {
		m, err := protocol.Decode([]byte(`{"type":"chat-message","timestamp":1,"sender":"alice","text":"hi"}`))
		assert.NoError(t, err)
		assert.False(t, m.Sharing())
		assert.False(t, m.Recording())
	})

	t.Run("explicit false is preserved, not dropped", func(t *testing.T) {
		raw, err := protocol.Encode(protocol.NewScreenStatus("room-a", false, "camera"))
		assert.NoError(t, err)

		m, err := protocol.Decode(raw)
		assert.NoError(t, err)
		assert.NotNil(t, m.IsSharing, "isSharing=false must survive encoding for validation")
		assert.False(t, m.Sharing())
	})

	t.Run("urgent and forceRefresh round-trip", func(t *testing.T) {
		raw, err := protocol.Encode(protocol.NewRequestUpdate("room-a", true, true))
		assert.NoError(t, err)

		m, err := protocol.Decode(raw)
		assert.NoError(t, err)
		assert.True(t, m.Urgent)
		assert.True(t, m.ForceRefresh)
	})
}

func TestChatTimestampIsWallClockMillis(t *testing.T) {
	before := time.Now().UnixMilli()
	m := protocol.NewChat("alice", "hi")
	after := time.Now().UnixMilli()

	assert.GreaterOrEqual(t, m.Timestamp, before)
	assert.LessOrEqual(t, m.Timestamp, after)
}
