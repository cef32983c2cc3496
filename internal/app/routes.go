package app

import (
	"time"

	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
)

// buildRoutes wires every protocol message type into the router. Routes
// are not exclusive: the username type deliberately matches twice, once
// to apply the name locally and once for the creator fan-out.
func (o *Orchestrator) buildRoutes() {
	r := o.router

	r.Handle(protocol.TypeUsername, o.handleUsername)
	r.HandleFunc(func(m protocol.Message) bool {
		return m.Type == protocol.TypeUsername && o.creator
	}, o.forwardUsername)

	r.Handle(protocol.TypeRequestUsername, o.handleRequestUsername)
	r.Handle(protocol.TypePeerList, o.handlePeerList)
	r.Handle(protocol.TypeRequestPeerList, o.handleRequestPeerList)
	r.Handle(protocol.TypeNewPeer, o.handleNewPeer)
	r.Handle(protocol.TypePeerDisconnect, o.handlePeerDisconnect)
	r.Handle(protocol.TypeScreenStatus, o.handleScreenStatus)
	r.Handle(protocol.TypeScreenStream, o.handleScreenStream)
	r.Handle(protocol.TypeScreenStarted, o.handleScreenStarted)
	r.Handle(protocol.TypeStreamMetadata, o.handleStreamMetadata)
	r.Handle(protocol.TypeRequestScreen, o.handleRequestScreen)
	r.Handle(protocol.TypeRequestUpdate, o.handleRequestUpdate)
	r.Handle(protocol.TypeCameraRestored, o.handleCameraRestored)
	r.Handle(protocol.TypeReconnectAfterShare, o.handleReconnectAfterShare)
	r.Handle(protocol.TypeFullReconnect, o.handleFullReconnect)
	r.Handle(protocol.TypeChat, o.handleChat)
	r.Handle(protocol.TypeRecordingStatus, o.handleRecordingStatus)
}

func (o *Orchestrator) handleUsername(from domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	p, ok := o.roster.Get(subject)
	if !ok {
		return
	}
	if err := p.SetUsername(m.Username); err != nil {
		o.log.Warn().Err(err).Str("peer", subject.String()).Msg("rejected username")
		return
	}
	o.log.Debug().Str("peer", subject.String()).Str("username", m.Username).Msg("username updated")
}

// forwardUsername is the creator-only fan-out: everyone except the
// origin channel and the named subject gets the update verbatim.
func (o *Orchestrator) forwardUsername(from domain.PeerID, m protocol.Message) {
	if domain.PeerID(m.PeerID) == o.self {
		return
	}
	for _, id := range o.reg.Peers() {
		if id == from || id.String() == m.PeerID {
			continue
		}
		o.sendTo(id, m)
	}
}

func (o *Orchestrator) handleRequestUsername(from domain.PeerID, _ protocol.Message) {
	o.sendTo(from, protocol.NewUsername(o.self.String(), o.username))
}

func (o *Orchestrator) handlePeerList(_ domain.PeerID, m protocol.Message) {
	ids := make([]domain.PeerID, 0, len(m.Peers))
	for _, s := range m.Peers {
		ids = append(ids, domain.PeerID(s))
	}
	o.reconcile(ids)
}

func (o *Orchestrator) handleRequestPeerList(from domain.PeerID, _ protocol.Message) {
	if !o.creator {
		return
	}
	o.sendTo(from, protocol.NewPeerList(o.peerListFor(from)))
}

func (o *Orchestrator) handleNewPeer(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	o.establish(subject)
}

func (o *Orchestrator) handlePeerDisconnect(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	o.log.Info().Str("peer", subject.String()).Msg("peer announced disconnect")
	o.teardownPeer(subject)
}

func (o *Orchestrator) handleScreenStatus(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	p, ok := o.roster.Get(subject)
	if !ok {
		return
	}
	sharing := m.Sharing()
	p.SetScreenSharing(sharing)
	if sharing {
		o.sharer = subject
		return
	}
	if o.sharer == subject {
		o.sharer = ""
	}
	delete(o.screenAsks, subject)
	delete(o.pendingScreen, subject)
	o.sched.Cancel(subject, purposeScreenWait)
	o.reg.DropMedia(subject, media.Screen)
	if cam, okc := o.reg.MediaChan(subject, media.Camera); okc {
		p.SetStream(cam.Remote())
	}
}

// handleScreenStream marks the sender's next media channel as screen
// content and arms a watchdog in case it never shows up.
func (o *Orchestrator) handleScreenStream(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	o.pendingScreen[subject] = true
	o.sched.After(subject, purposeScreenWait, o.cfg.ScreenRequestCooldown, func() {
		o.screenStreamMissing(subject)
	})
}

func (o *Orchestrator) handleScreenStarted(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.SharingPeerID)
	if subject == o.self {
		return
	}
	o.sharer = subject
	if p, ok := o.roster.Get(subject); ok {
		p.SetScreenSharing(true)
	}
	if !o.reg.HasMedia(subject, media.Screen) && !o.pendingScreen[subject] {
		o.screenStreamMissing(subject)
	}
}

func (o *Orchestrator) handleStreamMetadata(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	kind := media.Kind(m.StreamType)
	if kind != media.Camera && kind != media.Screen {
		o.log.Warn().Str("streamType", m.StreamType).Msg("unknown stream type")
		return
	}
	if p, ok := o.roster.Get(subject); ok {
		p.SetStreamKind(kind)
	}
}

// handleRequestScreen: a receiver lost our screen content; give it a
// fresh overlay channel.
func (o *Orchestrator) handleRequestScreen(from domain.PeerID, _ protocol.Message) {
	if o.screen == nil {
		return
	}
	o.reg.DropMedia(from, media.Screen)
	o.sendTo(from, protocol.NewScreenStream(o.self.String()))
	o.openScreenTo(from)
}

// handleRequestUpdate: the peer wants a fresh camera channel from us.
func (o *Orchestrator) handleRequestUpdate(from domain.PeerID, m protocol.Message) {
	if !m.ForceRefresh && !m.Urgent && o.reg.HasMedia(from, media.Camera) {
		return
	}
	o.refreshCamera(from)
}

// handleCameraRestored: the sharer repaired its camera; pull a fresh one
// instead of trusting a possibly-empty stream.
func (o *Orchestrator) handleCameraRestored(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	o.sendTo(subject, protocol.NewRequestUpdate(o.self.String(), false, true))
}

func (o *Orchestrator) handleReconnectAfterShare(_ domain.PeerID, m protocol.Message) {
	subject := domain.PeerID(m.PeerID)
	if subject == o.self {
		return
	}
	o.refreshCamera(subject)
}

func (o *Orchestrator) handleFullReconnect(from domain.PeerID, _ protocol.Message) {
	o.log.Info().Str("peer", from.String()).Msg("full reconnect requested")
	o.reg.DropMedia(from, media.Camera)
	o.establish(from)
}

// handleChat forwards to the application layer; the orchestrator never
// interprets chat content.
func (o *Orchestrator) handleChat(_ domain.PeerID, m protocol.Message) {
	o.emit(Event{Kind: EventChat, Chat: &ChatEntry{
		Sender: m.Sender,
		Text:   m.Text,
		At:     time.UnixMilli(m.Timestamp),
	}})
}

func (o *Orchestrator) handleRecordingStatus(_ domain.PeerID, m protocol.Message) {
	o.remoteRecording = m.Recording()
	if m.Recording() {
		o.recordingHost = m.Host
	} else if !o.recording {
		o.recordingHost = ""
	}
}
