package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
)

// startScreenShare kicks off screen capture. The capture itself runs
// off the actor; announcement and channel fan-out happen once the
// stream is in hand.
func (o *Orchestrator) startScreenShare() error {
	if o.screen != nil {
		return ErrAlreadySharing
	}
	if o.sharer != "" {
		return fmt.Errorf("%w: %s is sharing", ErrAlreadySharing, o.sharer)
	}
	if o.screenSrc == nil {
		return ErrNoScreenSource
	}
	src := o.screenSrc
	timeout := o.cfg.DialTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s, err := src(ctx)
		o.post(func() { o.screenAcquired(s, err) })
	}()
	return nil
}

func (o *Orchestrator) screenAcquired(s *media.Stream, err error) {
	if err != nil {
		o.lastErr = fmt.Errorf("screen capture: %w", err)
		o.log.Error().Err(err).Msg("screen acquisition failed")
		return
	}
	if o.screen != nil || o.sharer != "" {
		s.Close()
		return
	}
	o.screen = s
	o.broadcast(protocol.NewScreenStatus(o.self.String(), true, string(media.Screen)))
	o.broadcast(protocol.NewScreenStarted(o.self.String()))
	peers := o.reg.Peers()
	for i, id := range peers {
		peer := id
		delay := time.Duration(i) * o.cfg.StaggerInterval
		o.sched.After(peer, purposeScreenOpen, delay, func() { o.announceAndOpenScreen(peer) })
	}
	o.log.Info().Int("peers", len(peers)).Msg("screen share started")
}

// announceAndOpenScreen notifies peer, then opens the overlay channel.
// The notification must beat the channel or the receiver will file the
// stream as a second camera.
func (o *Orchestrator) announceAndOpenScreen(peer domain.PeerID) {
	if o.screen == nil {
		return
	}
	o.sendTo(peer, protocol.NewScreenStream(o.self.String()))
	o.openScreenTo(peer)
}

func (o *Orchestrator) openScreenTo(peer domain.PeerID) {
	if o.screen == nil || !o.reg.Has(peer) {
		return
	}
	gen := o.reg.Gen(peer)
	sess := o.session
	scr := o.screen
	timeout := o.cfg.DialTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		mc, err := sess.OpenMedia(ctx, peer, scr, core.MediaOptions{Kind: media.Screen})
		o.post(func() {
			if err != nil {
				o.log.Warn().Err(err).Str("peer", peer.String()).Msg("screen channel open failed")
				if o.screen != nil {
					o.sched.After(peer, purposeScreenOpen, o.cfg.ScreenRequestCooldown, func() { o.openScreenTo(peer) })
				}
				return
			}
			if o.screen == nil || o.reg.Gen(peer) != gen {
				mc.Close()
				return
			}
			o.reg.SetMedia(peer, media.Screen, mc)
			o.log.Debug().Str("peer", peer.String()).Msg("screen channel open")
		})
	}()
}

// stopScreenShare closes every overlay channel, then repairs the
// primary channels the overlay may have degraded.
func (o *Orchestrator) stopScreenShare() error {
	if o.screen == nil {
		return ErrNotSharing
	}
	for _, id := range o.reg.Peers() {
		o.sched.Cancel(id, purposeScreenOpen)
		o.reg.DropMedia(id, media.Screen)
	}
	o.screen.Close()
	o.screen = nil
	o.broadcast(protocol.NewScreenStatus(o.self.String(), false, string(media.Camera)))
	o.broadcast(protocol.NewCameraRestored(o.self.String()))
	peers := o.reg.Peers()
	for i, id := range peers {
		peer := id
		delay := time.Duration(i) * o.cfg.StaggerInterval
		o.sched.After(peer, purposeRepair, delay, func() { o.repairPrimary(peer) })
	}
	o.log.Info().Int("peers", len(peers)).Msg("screen share stopped")
	return nil
}

// repairPrimary makes sure the camera leg to peer survived the overlay.
// A live channel gets a transport-level restart; a dead or failed one
// goes through the full re-call path, with the peer told to redial us.
func (o *Orchestrator) repairPrimary(peer domain.PeerID) {
	if !o.reg.Has(peer) {
		return
	}
	if o.reg.HasMedia(peer, media.Camera) {
		err := o.session.Restart(peer)
		if err == nil {
			return
		}
		o.log.Warn().Err(err).Str("peer", peer.String()).Msg("restart failed, re-calling")
		o.reg.DropMedia(peer, media.Camera)
	}
	o.sendTo(peer, protocol.NewReconnectAfterShare(o.self.String()))
	o.establish(peer)
}

// screenStreamMissing fires when announced screen content never arrived
// or went quiet. Requests are bounded and cooldown-spaced so a dead
// sharer cannot be stormed.
func (o *Orchestrator) screenStreamMissing(peer domain.PeerID) {
	if o.reg.HasMedia(peer, media.Screen) {
		ch, _ := o.reg.MediaChan(peer, media.Screen)
		if ch.Remote().LiveWithin(o.cfg.InactivityGrace) {
			delete(o.screenAsks, peer)
			return
		}
	}
	asks := o.screenAsks[peer]
	if asks >= o.cfg.ScreenRequestAttempts {
		o.log.Warn().Str("peer", peer.String()).Int("asks", asks).Msg("giving up on screen stream")
		delete(o.screenAsks, peer)
		delete(o.pendingScreen, peer)
		return
	}
	o.screenAsks[peer] = asks + 1
	o.pendingScreen[peer] = true
	o.sendTo(peer, protocol.NewRequestScreen(o.self.String(), asks > 0))
	o.sched.After(peer, purposeScreenWait, o.cfg.ScreenRequestCooldown, func() { o.screenStreamMissing(peer) })
}

// onScreenMediaClosed handles an overlay channel dying mid-share, on
// either side of it.
func (o *Orchestrator) onScreenMediaClosed(peer domain.PeerID) {
	if o.screen != nil {
		o.sched.After(peer, purposeScreenOpen, o.cfg.RecallDelay, func() { o.openScreenTo(peer) })
		return
	}
	p, ok := o.roster.Get(peer)
	if !ok || !p.ScreenSharing {
		return
	}
	o.log.Warn().Str("peer", peer.String()).Msg("screen channel closed while peer still sharing")
	if cam, okc := o.reg.MediaChan(peer, media.Camera); okc {
		p.SetStream(cam.Remote())
	}
	o.screenStreamMissing(peer)
}
