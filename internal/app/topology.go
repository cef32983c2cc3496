package app

import (
	"time"

	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
	"github.com/Liergab/peercall/internal/protocol"
)

// allowedByTopology says whether this node may hold channels to peer.
// The creator connects to everyone in both modes; a non-creator in star
// mode only to the creator.
func (o *Orchestrator) allowedByTopology(peer domain.PeerID) bool {
	if o.creator || o.topology == domain.TopologyMesh {
		return true
	}
	return peer.IsCreator()
}

// applyTopology switches the connection mode at runtime. Star drops the
// direct legs between non-creators without replacement, so the switch
// is lossy in that direction. Mesh rebuilds from the creator's list.
func (o *Orchestrator) applyTopology(t domain.Topology) {
	if t == o.topology {
		return
	}
	prev := o.topology
	o.topology = t
	o.log.Info().Str("from", string(prev)).Str("to", string(t)).Msg("topology changed")
	if o.creator {
		return
	}
	switch t {
	case domain.TopologyStar:
		for _, id := range o.reg.Peers() {
			if id.IsCreator() {
				continue
			}
			o.sched.CancelPeer(id)
			o.reg.Remove(id)
			o.roster.Remove(id)
			delete(o.recallFails, id)
			delete(o.pendingScreen, id)
			delete(o.screenAsks, id)
			if o.sharer == id {
				o.sharer = ""
			}
		}
	case domain.TopologyMesh:
		o.sendTo(o.creatorID(), protocol.NewRequestPeerList())
	}
}

// reconcile drives connections toward the given authoritative peer
// list. New dials are staggered so a large list does not open every
// channel in the same instant.
func (o *Orchestrator) reconcile(ids []domain.PeerID) {
	n := 0
	for _, id := range ids {
		if id == o.self || !o.allowedByTopology(id) {
			continue
		}
		if o.reg.HasMedia(id, media.Camera) {
			continue
		}
		delay := time.Duration(n) * o.cfg.StaggerInterval
		n++
		peer := id
		if delay == 0 {
			o.establish(peer)
			continue
		}
		o.sched.After(peer, purposeConnect, delay, func() { o.establish(peer) })
	}
}
