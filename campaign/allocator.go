/*
allocator.go - A/B sample balancing

PURPOSE:
  Decides which arm each candidate contact receives. Allocation strictly
  alternates A/B across the whole cycle (not per-batch-random), so the
  running counts of the two arms never differ by more than one regardless
  of batch boundaries, and both samples grow at the same rate.

DESIGN:
  - Pure function over the cycle's persisted sent counters plus the
    allocations made so far in the current batch. No mutation here:
    counters move only after a dispatch actually succeeds.
  - When one arm reaches the target first, all remaining slots go to the
    other arm until it catches up; then allocation stops entirely.
  - Empty candidate list is a normal "nothing to send" condition, not an
    error.

SEE ALSO:
  - ratelimit.go: decides how large a batch may be
  - api/scheduler.go: dispatches the allocations
*/
package campaign

// VariantAllocator assigns arms to candidate contacts.
type VariantAllocator struct{}

func NewVariantAllocator() *VariantAllocator {
	return &VariantAllocator{}
}

// NextBatch pairs up to batchSize candidates with arms, alternating
// strictly so |countA - countB| <= 1 at every point of the cycle. Once
// an arm hits cycle.TargetPerVariant, only the other arm is allocated;
// once both hit target the result is empty.
func (va *VariantAllocator) NextBatch(cycle *CampaignCycle, batchSize int, candidates []Contact) []Allocation {
	a, b := cycle.SentA, cycle.SentB
	target := cycle.TargetPerVariant

	var out []Allocation
	for _, contact := range candidates {
		if len(out) >= batchSize {
			break
		}
		if a >= target && b >= target {
			break
		}
		if contact.OptedOut {
			// Candidates are pre-filtered; this is belt and suspenders
			// for the permanent-exclusion invariant.
			continue
		}

		v := nextVariant(a, b, target)
		out = append(out, Allocation{Contact: contact, Variant: v})
		if v == VariantA {
			a++
		} else {
			b++
		}
	}
	return out
}

// nextVariant picks the arm with the lower running count; ties go to A.
// An arm at target is never picked.
func nextVariant(a, b, target int) Variant {
	switch {
	case a >= target:
		return VariantB
	case b >= target:
		return VariantA
	case b < a:
		return VariantB
	default:
		return VariantA
	}
}
