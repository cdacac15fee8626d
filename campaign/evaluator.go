/*
evaluator.go - Winner declaration

PURPOSE:
  Decides which arm won a cycle once both samples are full and the
  attribution window has elapsed after the last send. Comparison is a
  plain response-rate ratio - deliberately NOT a significance test; the
  MVP trades statistical rigor for a loop that always makes progress.

TIE RULE:
  Equal rates (including 0/0) go to the champion, variant A. Ties never
  block rotation.

SEE ALSO:
  - cycle.go:         the status transition the result drives
  - api/scheduler.go: invokes Evaluate during awaiting_attribution
*/
package campaign

import (
	"time"

	"github.com/shopspring/decimal"
)

// WinnerResult is a declared winner with the rates that decided it.
type WinnerResult struct {
	CycleID CycleID
	Winner  Variant
	RateA   decimal.Decimal
	RateB   decimal.Decimal
}

// Summary formats the result for the notification sink.
func (r WinnerResult) Summary(cycle *CampaignCycle) WinnerSummary {
	return WinnerSummary{
		CycleID:    r.CycleID,
		CampaignID: cycle.CampaignID,
		Winner:     r.Winner,
		WinnerText: cycle.VariantText(r.Winner),
		RateA:      formatRate(r.RateA),
		RateB:      formatRate(r.RateB),
	}
}

// WinnerEvaluator computes cycle outcomes.
type WinnerEvaluator struct{}

func NewWinnerEvaluator() *WinnerEvaluator {
	return &WinnerEvaluator{}
}

// Evaluate returns the winner, or nil while preconditions are unmet:
// both sent counters must equal the target AND the attribution window
// must have fully elapsed since the last send. The strictly higher
// response rate wins; equal rates keep the champion.
func (we *WinnerEvaluator) Evaluate(cycle *CampaignCycle, window time.Duration, now time.Time) *WinnerResult {
	if cycle.SentA < cycle.TargetPerVariant || cycle.SentB < cycle.TargetPerVariant {
		return nil
	}
	if cycle.LastSendAt == nil || now.Before(cycle.LastSendAt.Add(window)) {
		return nil
	}

	rateA := responseRate(cycle.ResponsesA, cycle.SentA)
	rateB := responseRate(cycle.ResponsesB, cycle.SentB)

	winner := VariantA // champion keeps the crown on a tie
	if rateB.GreaterThan(rateA) {
		winner = VariantB
	}

	return &WinnerResult{
		CycleID: cycle.ID,
		Winner:  winner,
		RateA:   rateA,
		RateB:   rateB,
	}
}

// RateString renders a response rate as a percent string, e.g. "8%".
// Used by reporting surfaces that show per-arm rates.
func RateString(responses, sent int) string {
	return formatRate(responseRate(responses, sent))
}

// responseRate returns responses/sent as a decimal; 0/0 is defined as 0.
func responseRate(responses, sent int) decimal.Decimal {
	if sent == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(responses)).Div(decimal.NewFromInt(int64(sent)))
}

func formatRate(r decimal.Decimal) string {
	return r.Mul(decimal.NewFromInt(100)).Round(2).String() + "%"
}
