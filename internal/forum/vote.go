package forum

import (
	"context"
	"fmt"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

// ToggleVote returns the vote to send when the viewer presses requested while
// holding existing: pressing the same button again clears the vote.
func ToggleVote(existing, requested models.VoteType) models.VoteType {
	if existing == requested {
		return models.VoteNone
	}
	return requested
}

// Outcome describes how a vote attempt ended.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSignInRequired
)

func (o Outcome) String() string {
	if o == OutcomeSignInRequired {
		return "sign_in_required"
	}
	return "applied"
}

// VoteAPI is the backend call used by Voter.
type VoteAPI interface {
	Vote(ctx context.Context, in api.VoteRequest) (*models.VoteResult, error)
}

// Voter sends votes for the signed-in viewer and applies the server's counters.
type Voter struct {
	api     VoteAPI
	session session.Provider
	bus     events.Bus
	log     *observability.Logger
}

// NewVoter creates a Voter. bus may be nil.
func NewVoter(client VoteAPI, sess session.Provider, bus events.Bus) *Voter {
	return &Voter{api: client, session: sess, bus: bus, log: observability.GlobalLogger}
}

// Vote toggles the viewer's vote on a post or comment in view. Without a
// session nothing is sent: the sign-in prompt is requested and
// OutcomeSignInRequired is returned. On failure the local state is left as it
// was and the error is returned.
func (v *Voter) Vote(ctx context.Context, view *ThreadView, kind models.TargetKind, id models.ID, requested models.VoteType) (Outcome, error) {
	if _, err := session.RequireUser(v.session); err != nil {
		if err := events.Emit(ctx, v.bus, events.OpenSignIn, events.OpenSignInDetail{Reason: "vote"}); err != nil {
			v.log.WarnContext(ctx, "failed to request sign-in", "error", err)
		}
		return OutcomeSignInRequired, nil
	}
	if !requested.Valid() || requested == models.VoteNone {
		return OutcomeApplied, models.NewValidationError("vote must be up or down")
	}

	existing, ok := view.currentVote(kind, id)
	if !ok {
		return OutcomeApplied, models.NewNotFoundError(string(kind), id)
	}
	next := ToggleVote(existing, requested)

	res, err := v.api.Vote(ctx, api.VoteRequest{TargetType: kind, TargetID: id, VoteType: next.WireValue()})
	if err != nil {
		v.log.ErrorContext(ctx, "vote failed", "target", kind, "id", id, "error", err)
		return OutcomeApplied, fmt.Errorf("vote on %s %s: %w", kind, id, err)
	}
	observability.VotesSent.WithLabelValues(string(kind), next.WireValue()).Inc()

	view.applyVote(kind, id, res, next)
	return OutcomeApplied, nil
}
