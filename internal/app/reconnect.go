package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
)

// startJoin begins the bounded join sequence against the room creator.
func (o *Orchestrator) startJoin() {
	o.joinAttempts = 0
	o.log.Info().Str("creator", o.creatorID().String()).Msg("joining room")
	o.tryJoin()
}

func (o *Orchestrator) tryJoin() {
	o.joinAttempts++
	o.log.Info().Int("attempt", o.joinAttempts).Int("max", o.cfg.JoinAttempts).Msg("calling creator")
	o.establish(o.creatorID())
}

// joinFailed retries until the attempt budget runs out, then shuts the
// orchestrator down with a terminal error. A missing host keeps its
// identity so callers can distinguish "room does not exist" from
// transport trouble.
func (o *Orchestrator) joinFailed(err error) {
	if o.joinAttempts >= o.cfg.JoinAttempts {
		if errors.Is(err, core.ErrPeerUnavailable) {
			o.fail(fmt.Errorf("%w: %s", ErrHostUnreachable, o.creatorID()))
			return
		}
		o.fail(fmt.Errorf("joining %s: %w", o.creatorID(), err))
		return
	}
	o.log.Warn().Err(err).Int("attempt", o.joinAttempts).Msg("join attempt failed, retrying")
	o.sched.After(o.creatorID(), purposeJoinRetry, o.cfg.JoinRetryInterval, o.tryJoin)
}

func (o *Orchestrator) joinSucceeded() {
	o.joined = true
	o.sched.Cancel(o.creatorID(), purposeJoinRetry)
	o.log.Info().Int("attempts", o.joinAttempts).Msg("joined room")
	// push our name (the creator fans it out) and pull the creator's
	o.sendTo(o.creatorID(), protocol.NewUsername(o.self.String(), o.username))
	o.sendTo(o.creatorID(), protocol.NewRequestUsername(o.self.String()))
}

// refreshCamera tears down the primary media channel to peer and dials
// a fresh one, keeping the control channel intact.
func (o *Orchestrator) refreshCamera(peer domain.PeerID) {
	if !o.reg.Has(peer) {
		return
	}
	o.reg.DropMedia(peer, media.Camera)
	gen := o.reg.Gen(peer)
	sess := o.session
	local := o.local
	timeout := o.cfg.DialTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		mc, err := sess.OpenMedia(ctx, peer, local, core.MediaOptions{Kind: media.Camera})
		o.post(func() {
			if err != nil {
				o.establishFailed(peer, err)
				return
			}
			if o.reg.Gen(peer) != gen {
				mc.Close()
				return
			}
			o.reg.SetMedia(peer, media.Camera, mc)
			o.connected(peer, mc.Remote())
		})
	}()
}

// sweepInactive runs on a timer and looks for connected peers whose
// displayed stream stopped producing frames. Quiet screen content asks
// the sharer for a fresh stream; a quiet camera goes through the
// re-call path.
func (o *Orchestrator) sweepInactive() {
	grace := o.cfg.InactivityGrace
	for _, id := range o.roster.IDs() {
		p, ok := o.roster.Get(id)
		if !ok || p.Transition != domain.TransitionConnected || p.Stream == nil {
			continue
		}
		if p.Stream.LiveWithin(grace) {
			continue
		}
		if p.ScreenSharing {
			o.screenStreamMissing(id)
			continue
		}
		o.log.Warn().Str("peer", id.String()).Dur("grace", grace).Msg("stream went quiet, re-calling")
		p.Transition = domain.TransitionReconnecting
		o.reg.DropMedia(id, media.Camera)
		peer := id
		o.sched.After(peer, purposeRecall, o.cfg.RecallDelay, func() { o.establish(peer) })
	}
}
