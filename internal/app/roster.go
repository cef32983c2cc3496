package app

import (
	"github.com/Liergab/peercall/internal/domain"
)

// Roster is the participant store, ordered by arrival. Like the registry
// it belongs to the orchestrator goroutine; readers get copies.
type Roster struct {
	order []domain.PeerID
	byID  map[domain.PeerID]*domain.Participant
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[domain.PeerID]*domain.Participant)}
}

// Upsert returns the participant for id, creating it at the end of the
// arrival order when unknown.
func (ro *Roster) Upsert(id domain.PeerID) *domain.Participant {
	if p, ok := ro.byID[id]; ok {
		return p
	}
	p := domain.NewParticipant(id)
	ro.byID[id] = p
	ro.order = append(ro.order, id)
	return p
}

func (ro *Roster) Get(id domain.PeerID) (*domain.Participant, bool) {
	p, ok := ro.byID[id]
	return p, ok
}

func (ro *Roster) Remove(id domain.PeerID) bool {
	if _, ok := ro.byID[id]; !ok {
		return false
	}
	delete(ro.byID, id)
	for i, o := range ro.order {
		if o == id {
			ro.order = append(ro.order[:i], ro.order[i+1:]...)
			break
		}
	}
	return true
}

func (ro *Roster) Len() int { return len(ro.order) }

// IDs returns the peer ids in arrival order.
func (ro *Roster) IDs() []domain.PeerID {
	out := make([]domain.PeerID, len(ro.order))
	copy(out, ro.order)
	return out
}

// Snapshot returns value copies in arrival order, safe to hand across
// goroutines.
func (ro *Roster) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(ro.order))
	for _, id := range ro.order {
		out = append(out, *ro.byID[id])
	}
	return out
}
