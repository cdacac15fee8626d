package campaign_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attackacrack/campaign-engine/campaign"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testCandidates(n int) []campaign.Contact {
	out := make([]campaign.Contact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, campaign.Contact{
			Phone: campaign.PhoneNumber(fmt.Sprintf("+1617555%04d", i)),
			Name:  fmt.Sprintf("Contact %d", i),
		})
	}
	return out
}

func runningCycle(target, sentA, sentB int) *campaign.CampaignCycle {
	return &campaign.CampaignCycle{
		ID:               "cycle-1",
		CampaignID:       "camp-1",
		VariantAText:     "text A",
		VariantBText:     "text B",
		TargetPerVariant: target,
		SentA:            sentA,
		SentB:            sentB,
		Status:           campaign.StatusRunning,
	}
}

// =============================================================================
// ALTERNATION TESTS
// =============================================================================

func TestAllocator_StrictAlternationFromZero(t *testing.T) {
	// GIVEN: A fresh cycle with no sends
	// WHEN: Allocating a batch of 6
	// THEN: Arms alternate A,B,A,B,A,B

	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 0, 0), 6, testCandidates(6))

	require.Len(t, batch, 6)
	want := []campaign.Variant{
		campaign.VariantA, campaign.VariantB,
		campaign.VariantA, campaign.VariantB,
		campaign.VariantA, campaign.VariantB,
	}
	for i, a := range batch {
		assert.Equal(t, want[i], a.Variant, "slot %d", i)
	}
}

func TestAllocator_BalanceNeverDriftsPastOne(t *testing.T) {
	// GIVEN: A cycle drained by many batches of varying sizes
	// WHEN: Replaying allocation across batch boundaries
	// THEN: |countA - countB| <= 1 after every single allocation

	alloc := campaign.NewVariantAllocator()
	cycle := runningCycle(100, 0, 0)
	sizes := []int{1, 25, 3, 7, 25, 25, 25, 25, 25, 25, 14}

	for _, size := range sizes {
		batch := alloc.NextBatch(cycle, size, testCandidates(size))
		for _, a := range batch {
			if a.Variant == campaign.VariantA {
				cycle.SentA++
			} else {
				cycle.SentB++
			}
			diff := cycle.SentA - cycle.SentB
			if diff < 0 {
				diff = -diff
			}
			require.LessOrEqual(t, diff, 1,
				"balance drifted at A=%d B=%d", cycle.SentA, cycle.SentB)
		}
	}
	assert.Equal(t, 100, cycle.SentA)
	assert.Equal(t, 100, cycle.SentB)
}

func TestAllocator_CatchUpAfterFailures(t *testing.T) {
	// GIVEN: Arm B fell behind (failed dispatches never incremented it)
	// WHEN: Allocating the next batch
	// THEN: B gets slots until the counts level, then alternation resumes

	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 5, 3), 4, testCandidates(4))

	require.Len(t, batch, 4)
	assert.Equal(t, campaign.VariantB, batch[0].Variant)
	assert.Equal(t, campaign.VariantB, batch[1].Variant)
	// Level at 5/5; ties go to A.
	assert.Equal(t, campaign.VariantA, batch[2].Variant)
	assert.Equal(t, campaign.VariantB, batch[3].Variant)
}

// =============================================================================
// TARGET CAPPING TESTS
// =============================================================================

func TestAllocator_ArmAtTargetGetsNothing(t *testing.T) {
	// GIVEN: Arm A already reached target, B is 3 short
	// WHEN: Allocating a batch of 10
	// THEN: Only 3 allocations, all to B

	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 625, 622), 10, testCandidates(10))

	require.Len(t, batch, 3)
	for i, a := range batch {
		assert.Equal(t, campaign.VariantB, a.Variant, "slot %d", i)
	}
}

func TestAllocator_BothArmsAtTargetStops(t *testing.T) {
	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 625, 625), 25, testCandidates(25))
	assert.Empty(t, batch)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestAllocator_FewerCandidatesThanBatch(t *testing.T) {
	// Pool exhaustion is a normal partial batch, not an error.
	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 0, 0), 25, testCandidates(2))
	assert.Len(t, batch, 2)
}

func TestAllocator_NoCandidates(t *testing.T) {
	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 0, 0), 25, nil)
	assert.Empty(t, batch)
}

func TestAllocator_SkipsOptedOutCandidates(t *testing.T) {
	// GIVEN: A candidate list that slipped an opted-out contact through
	// WHEN: Allocating
	// THEN: The opted-out contact is never assigned an arm

	candidates := testCandidates(3)
	candidates[1].OptedOut = true

	alloc := campaign.NewVariantAllocator()
	batch := alloc.NextBatch(runningCycle(625, 0, 0), 3, candidates)

	require.Len(t, batch, 2)
	for _, a := range batch {
		assert.NotEqual(t, candidates[1].Phone, a.Contact.Phone)
	}
}
