/*
cycle.go - Cycle state machine and rotation

PURPOSE:
  Cycle lifecycle rules in one place: creation validation, the forward-
  only status transitions, and winner rotation (the declared winner's
  text becomes the next cycle's champion, counters reset, and the loop
  continues - "Always Be Testing").

STATE MACHINE:
  running -> awaiting_attribution -> winner_declared -> needs_new_variant
  needs_new_variant -> (operator supplies challenger) -> new cycle, running

  No backward transitions, no terminal state. Pausing is a campaign
  flag, not a cycle status.

SEE ALSO:
  - api/scheduler.go: drives the transitions each tick
  - api/handlers.go:  cycle creation and rotation endpoints
*/
package campaign

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// cycleTransitions is the forward-only transition table.
var cycleTransitions = map[CycleStatus]CycleStatus{
	StatusRunning:             StatusAwaitingAttribution,
	StatusAwaitingAttribution: StatusWinnerDeclared,
	StatusWinnerDeclared:      StatusNeedsNewVariant,
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to CycleStatus) bool {
	return cycleTransitions[from] == to
}

// Transition advances the cycle's status, rejecting backward or skipped
// moves. Persistence (and the version check) is the caller's job.
func (c *CampaignCycle) Transition(to CycleStatus) error {
	if !CanTransition(c.Status, to) {
		return &TransitionError{CycleID: c.ID, From: c.Status, To: to}
	}
	c.Status = to
	return nil
}

// NewCycle builds the first cycle of a campaign from two operator-
// supplied variant texts. Empty or duplicate text is rejected outright.
func NewCycle(campaignID CampaignID, variantA, variantB string, target int, startedAt time.Time) (*CampaignCycle, error) {
	if err := validateVariants(variantA, variantB); err != nil {
		return nil, err
	}
	return &CampaignCycle{
		ID:               CycleID(uuid.NewString()),
		CampaignID:       campaignID,
		VariantAText:     variantA,
		VariantBText:     variantB,
		TargetPerVariant: target,
		Status:           StatusRunning,
		StartedAt:        startedAt,
		Version:          1,
	}, nil
}

// Rotate builds the successor cycle once this one needs a new variant:
// the winner's text carries over as the new champion (variant A), the
// operator's challenger becomes variant B, and counters start at zero.
func (c *CampaignCycle) Rotate(challengerText string, at time.Time) (*CampaignCycle, error) {
	if c.Status != StatusNeedsNewVariant {
		return nil, &TransitionError{CycleID: c.ID, From: c.Status, To: StatusRunning}
	}
	return NewCycle(c.CampaignID, c.WinnerText(), challengerText, c.TargetPerVariant, at)
}

func validateVariants(a, b string) error {
	if strings.TrimSpace(a) == "" {
		return &InvalidVariantError{Variant: VariantA, Reason: "empty"}
	}
	if strings.TrimSpace(b) == "" {
		return &InvalidVariantError{Variant: VariantB, Reason: "empty"}
	}
	if strings.TrimSpace(a) == strings.TrimSpace(b) {
		return &InvalidVariantError{Variant: VariantB, Reason: "duplicate of variant A"}
	}
	return nil
}
