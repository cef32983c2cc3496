package app

import (
	"context"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
)

// establish ensures a full path to peer: control channel plus primary
// media channel. Calling it again for an already-connected peer is a
// no-op. The dial happens off the actor; its completion revalidates the
// registry generation before binding anything.
func (o *Orchestrator) establish(peer domain.PeerID) {
	if peer == o.self {
		return
	}
	if !o.allowedByTopology(peer) {
		o.log.Debug().Str("peer", peer.String()).Str("topology", string(o.topology)).Msg("connection not allowed")
		return
	}
	if o.reg.HasMedia(peer, media.Camera) {
		return
	}
	p := o.roster.Upsert(peer)
	if p.Transition != domain.TransitionReconnecting {
		p.Transition = domain.TransitionConnecting
	}

	gen := o.reg.Gen(peer)
	needControl := !o.reg.HasControl(peer)
	local := o.local
	timeout := o.cfg.DialTimeout
	sess := o.session
	o.log.Info().Str("peer", peer.String()).Bool("dial_control", needControl).Msg("establishing")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var (
			ctrl core.ControlChannel
			mc   core.MediaChannel
			err  error
		)
		if needControl {
			ctrl, err = sess.OpenControl(ctx, peer)
		}
		if err == nil {
			mc, err = sess.OpenMedia(ctx, peer, local, core.MediaOptions{Kind: media.Camera})
		}
		o.post(func() { o.finishEstablish(peer, gen, ctrl, mc, err) })
	}()
}

func (o *Orchestrator) finishEstablish(peer domain.PeerID, gen uint64, ctrl core.ControlChannel, mc core.MediaChannel, err error) {
	if o.reg.Gen(peer) != gen {
		// the registry moved on while we were dialing, so these
		// channels would be the second pair for the peer
		if ctrl != nil {
			ctrl.Close()
		}
		if mc != nil {
			mc.Close()
		}
		o.log.Debug().Str("peer", peer.String()).Msg("stale establish discarded")
		return
	}
	if err != nil {
		if ctrl != nil {
			ctrl.Close()
		}
		if mc != nil {
			mc.Close()
		}
		o.establishFailed(peer, err)
		return
	}
	if ctrl != nil {
		o.reg.SetControl(peer, ctrl)
	}
	o.reg.SetMedia(peer, media.Camera, mc)
	o.connected(peer, mc.Remote())
}

// connected records a working primary path to peer and clears every
// pending reconnection task for it.
func (o *Orchestrator) connected(peer domain.PeerID, remote *media.Stream) {
	delete(o.recallFails, peer)
	o.sched.Cancel(peer, purposeRecall)
	o.sched.Cancel(peer, purposeRepair)
	o.sched.Cancel(peer, purposeRemove)
	p := o.roster.Upsert(peer)
	if !p.ScreenSharing {
		p.SetStream(remote)
	}
	p.Transition = domain.TransitionConnected
	if !o.joined && peer == o.creatorID() {
		o.joinSucceeded()
	}
	o.log.Info().Str("peer", peer.String()).Msg("connected")
}

func (o *Orchestrator) establishFailed(peer domain.PeerID, err error) {
	if !o.joined && peer == o.creatorID() {
		o.joinFailed(err)
		return
	}
	o.recallFails[peer]++
	fails := o.recallFails[peer]
	if p, ok := o.roster.Get(peer); ok {
		p.Transition = domain.TransitionReconnecting
	}
	if fails == o.cfg.RelayFailThreshold {
		o.log.Warn().Str("peer", peer.String()).Int("fails", fails).Msg("forcing relay-only paths")
		o.session.ForceRelay(peer)
	}
	delay := o.cfg.RecallDelay * (1 << min(fails-1, 4))
	o.log.Warn().Err(err).Str("peer", peer.String()).Int("fails", fails).Dur("retry_in", delay).Msg("establish failed")
	o.sched.After(peer, purposeRecall, delay, func() { o.establish(peer) })
}

// reopenControl redials only the signaling channel; used when control
// drops while media keeps flowing.
func (o *Orchestrator) reopenControl(peer domain.PeerID) {
	if o.reg.HasControl(peer) {
		return
	}
	gen := o.reg.Gen(peer)
	timeout := o.cfg.DialTimeout
	sess := o.session
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ctrl, err := sess.OpenControl(ctx, peer)
		o.post(func() {
			if err != nil {
				o.log.Warn().Err(err).Str("peer", peer.String()).Msg("control redial failed")
				o.sched.After(peer, purposeRecall, o.cfg.RecallDelay, func() { o.reopenControl(peer) })
				return
			}
			if o.reg.Gen(peer) != gen {
				ctrl.Close()
				return
			}
			o.reg.SetControl(peer, ctrl)
		})
	}()
}

// teardownPeer drops every channel and queues the participant for
// removal after the transition delay.
func (o *Orchestrator) teardownPeer(peer domain.PeerID) {
	o.sched.CancelPeer(peer)
	o.reg.Remove(peer)
	delete(o.pendingScreen, peer)
	delete(o.screenAsks, peer)
	delete(o.recallFails, peer)
	if o.sharer == peer {
		o.sharer = ""
	}
	p, ok := o.roster.Get(peer)
	if !ok {
		return
	}
	p.Transition = domain.TransitionDisconnecting
	p.SetStream(nil)
	o.sched.After(peer, purposeRemove, o.cfg.TransitionDelay, func() {
		// the peer may have come back while the exit animation ran
		if o.reg.Has(peer) {
			return
		}
		o.roster.Remove(peer)
		o.log.Info().Str("peer", peer.String()).Msg("participant removed")
	})
}

func (o *Orchestrator) onIncomingControl(ch core.ControlChannel) {
	peer := ch.Peer()
	if peer == o.self {
		ch.Close()
		return
	}
	if !o.allowedByTopology(peer) {
		o.log.Debug().Str("peer", peer.String()).Msg("rejecting control, topology forbids")
		ch.Close()
		return
	}
	o.reg.SetControl(peer, ch)
	o.sched.Cancel(peer, purposeRemove)
	o.roster.Upsert(peer)
	o.log.Info().Str("peer", peer.String()).Msg("incoming control")

	if o.creator {
		// the newcomer gets the authoritative list, everybody else
		// learns about the newcomer
		o.sendTo(peer, protocol.NewPeerList(o.peerListFor(peer)))
		o.broadcastExcept(peer, protocol.NewNewPeer(peer.String()))
	}
	o.sendTo(peer, protocol.NewUsername(o.self.String(), o.username))
	if o.screen != nil {
		o.sendTo(peer, protocol.NewScreenStatus(o.self.String(), true, string(media.Screen)))
	}
	if o.recording {
		o.sendTo(peer, protocol.NewRecordingStatus(true, o.recordingHost))
	}
}

func (o *Orchestrator) onIncomingMedia(ch core.MediaChannel) {
	peer := ch.Peer()
	if peer == o.self {
		ch.Close()
		return
	}
	if !o.allowedByTopology(peer) {
		ch.Close()
		return
	}
	kind := ch.Kind()
	if o.pendingScreen[peer] {
		kind = media.Screen
	}
	if kind == media.Screen {
		delete(o.pendingScreen, peer)
		delete(o.screenAsks, peer)
		o.sched.Cancel(peer, purposeScreenWait)
		o.reg.SetMedia(peer, media.Screen, ch)
		p := o.roster.Upsert(peer)
		p.SetStream(ch.Remote())
		p.SetStreamKind(media.Screen)
		o.sharer = peer
		o.log.Info().Str("peer", peer.String()).Msg("incoming screen media")
		return
	}
	o.reg.SetMedia(peer, media.Camera, ch)
	o.connected(peer, ch.Remote())
	o.log.Info().Str("peer", peer.String()).Msg("incoming media")
}

func (o *Orchestrator) onControlClosed(e core.ControlClosed) {
	if o.reg.CurrentControl(e.Peer) != e.ChannelID {
		return // an older channel we already replaced
	}
	o.reg.DropControl(e.Peer)
	o.log.Warn().Str("peer", e.Peer.String()).Msg("control closed")
	if o.reg.HasMedia(e.Peer, media.Camera) {
		o.sched.After(e.Peer, purposeRecall, o.cfg.RecallDelay, func() { o.reopenControl(e.Peer) })
		return
	}
	if p, ok := o.roster.Get(e.Peer); ok {
		p.Transition = domain.TransitionReconnecting
	}
	o.sched.After(e.Peer, purposeRecall, o.cfg.RecallDelay, func() { o.establish(e.Peer) })
}

func (o *Orchestrator) onMediaClosed(e core.MediaClosed) {
	if o.reg.CurrentMedia(e.Peer, e.Kind) != e.ChannelID {
		return // stale close of a channel we already replaced
	}
	o.reg.DropMedia(e.Peer, e.Kind)
	if e.Kind == media.Screen {
		o.onScreenMediaClosed(e.Peer)
		return
	}
	o.log.Warn().Str("peer", e.Peer.String()).Msg("media closed, scheduling re-call")
	if p, ok := o.roster.Get(e.Peer); ok {
		p.Transition = domain.TransitionReconnecting
	}
	o.sched.After(e.Peer, purposeRecall, o.cfg.RecallDelay, func() { o.establish(e.Peer) })
}

func (o *Orchestrator) onSessionError(e core.SessionError) {
	o.log.Error().Err(e.Err).Str("kind", string(e.Kind)).Str("peer", e.Peer.String()).Msg("session error")
	if e.Kind == core.ErrorServer {
		o.lastErr = e.Err
	}
}

func (o *Orchestrator) creatorID() domain.PeerID {
	return domain.CreatorPeerID(o.room)
}

// peerListFor is the authoritative list sent to target: everyone we
// know about, including ourselves, except the recipient.
func (o *Orchestrator) peerListFor(target domain.PeerID) []string {
	ids := []string{o.self.String()}
	for _, id := range o.reg.Peers() {
		if id == target {
			continue
		}
		ids = append(ids, id.String())
	}
	return ids
}
