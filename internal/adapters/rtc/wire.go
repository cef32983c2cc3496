// Package rtc is the production Transport: one pion PeerConnection per
// logical channel, SDP and ICE carried over a websocket broker that
// routes envelopes between registered peers. The broker server itself
// is not part of this repo; anything that speaks this wire format and
// forwards by dst works.
package rtc

import "encoding/json"

const (
	wireOpen      = "OPEN"
	wireOffer     = "OFFER"
	wireAnswer    = "ANSWER"
	wireCandidate = "CANDIDATE"
	wireLeave     = "LEAVE"
	wireHeartbeat = "HEARTBEAT"
	wireError     = "ERROR"
)

// reasonUnknownPeer is what the broker answers when dst is not
// registered. It maps to core.ErrPeerUnavailable on our side.
const reasonUnknownPeer = "unknown-peer"

const (
	kindControl = "control"
)

type envelope struct {
	Type          string  `json:"type"`
	Src           string  `json:"src,omitempty"`
	Dst           string  `json:"dst,omitempty"`
	Conn          string  `json:"connection,omitempty"`
	Kind          string  `json:"kind,omitempty"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

func (e envelope) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
