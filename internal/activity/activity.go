// Package activity fans committed treasury activities out to external sinks.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

// Event is the wire form of an activity shared by every sink.
type Event struct {
	ID          uuid.UUID             `json:"id"`
	CommunityID uuid.UUID             `json:"community_id"`
	ProposalID  *uuid.UUID            `json:"proposal_id,omitempty"`
	Kind        treasury.ActivityKind `json:"kind"`
	Actor       string                `json:"actor"`
	Amount      string                `json:"amount,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

func NewEvent(a *treasury.Activity) Event {
	e := Event{
		ID:          a.ID,
		CommunityID: a.CommunityID,
		ProposalID:  a.ProposalID,
		Kind:        a.Kind,
		Actor:       a.Actor,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	}

	if a.Amount.Valid {
		e.Amount = a.Amount.Decimal.String()
	}

	return e
}

// Summary renders a one-line human description of a.
func Summary(a *treasury.Activity) string {
	amount := ""
	if a.Amount.Valid {
		amount = " " + a.Amount.Decimal.StringFixed(2)
	}

	switch a.Kind {
	case treasury.KindCommunityCreated:
		return fmt.Sprintf("%s created community %q with%s", a.Actor, a.Metadata["name"], amount)
	case treasury.KindProposalCreated:
		return fmt.Sprintf("%s proposed %q for%s", a.Actor, a.Metadata["title"], amount)
	case treasury.KindProposalApproved:
		return fmt.Sprintf("%s approved a proposal for%s (%s/%s)",
			a.Actor, amount, a.Metadata["approvals"], a.Metadata["leaders"])
	case treasury.KindProposalExecuted:
		return fmt.Sprintf("%s released%s to %s", a.Actor, amount, a.Metadata["recipient"])
	case treasury.KindTreasuryFunded:
		return fmt.Sprintf("%s funded the treasury with%s", a.Actor, amount)
	case treasury.KindProofAttached:
		return fmt.Sprintf("%s attached proof %s", a.Actor, a.Metadata["proof_ref"])
	default:
		return fmt.Sprintf("%s: %s", a.Kind, a.Actor)
	}
}

// Multi publishes to every notifier and joins their errors.
type Multi []treasury.Notifier

func (m Multi) Publish(ctx context.Context, a *treasury.Activity) error {
	var errs []error

	for _, n := range m {
		if err := n.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Logger writes each activity to a structured log.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Publish(ctx context.Context, a *treasury.Activity) error {
	l.logger.InfoContext(ctx, Summary(a),
		"kind", a.Kind,
		"community_id", a.CommunityID,
		"actor", a.Actor,
	)

	return nil
}
