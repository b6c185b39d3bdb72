package messaging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RelationshipOracle answers whether two users share at least one
// appointment, in either orientation. Implemented by the scheduling service.
type RelationshipOracle interface {
	ExistsBetween(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Gate is the single authorization decision point for messaging. Every
// history read, send and room join passes through Authorize.
type Gate struct {
	oracle RelationshipOracle
	log    zerolog.Logger
}

// NewGate creates an authorization gate backed by the given oracle.
func NewGate(oracle RelationshipOracle, log zerolog.Logger) *Gate {
	return &Gate{oracle: oracle, log: log.With().Str("component", "messaging-gate").Logger()}
}

// Authorize returns nil when the two users may message each other. Nil or
// equal ids are a validation failure rejected before any oracle query; an
// oracle error and a missing relationship both fail closed as
// ErrUnauthorized.
func (g *Gate) Authorize(ctx context.Context, a, b uuid.UUID) error {
	if a == uuid.Nil || b == uuid.Nil || a == b {
		return ErrInvalidParticipant
	}
	related, err := g.oracle.ExistsBetween(ctx, a, b)
	if err != nil {
		g.log.Warn().Err(err).Msg("relationship check failed, denying")
		return ErrUnauthorized
	}
	if !related {
		return ErrUnauthorized
	}
	return nil
}
