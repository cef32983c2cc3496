package rtc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Liergab/peercall/internal/core"
	"github.com/Liergab/peercall/internal/domain"
	"github.com/Liergab/peercall/internal/media"
)

// LocalProvider supplies the stream a session answers incoming media
// dials with, per kind.
type LocalProvider func(kind media.Kind) *media.Stream

type Options struct {
	BrokerURL      string
	STUNServers    []string
	TURNServer     string
	TURNUsername   string
	TURNCredential string
	Local          LocalProvider
}

type Transport struct {
	opt Options
	log zerolog.Logger
}

func NewTransport(opt Options) *Transport {
	return &Transport{
		opt: opt,
		log: log.With().Str("module", "rtc").Logger(),
	}
}

// Register dials the broker and returns the live session for id.
func (t *Transport) Register(ctx context.Context, id domain.PeerID) (core.Session, error) {
	s := newSession(t.opt, id)
	if err := s.connect(ctx); err != nil {
		return nil, fmt.Errorf("broker dial: %w", err)
	}
	t.log.Info().Str("peer", id.String()).Msg("registered")
	return s, nil
}
