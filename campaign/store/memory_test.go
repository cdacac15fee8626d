package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attackacrack/campaign-engine/campaign"
	"github.com/attackacrack/campaign-engine/campaign/store"
)

// The in-memory store must honor the same contract the SQLite store
// does; these tests pin the invariants the engine leans on hardest.

func newCycle(t *testing.T, mem *store.Memory, target int) *campaign.CampaignCycle {
	t.Helper()
	cycle, err := campaign.NewCycle("camp-1", "text A", "text B", target,
		time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, mem.CreateCycle(context.Background(), *cycle))
	return cycle
}

func TestMemory_UpdateCycleVersionConflict(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	cycle := newCycle(t, mem, 625)

	first := *cycle
	require.NoError(t, first.Transition(campaign.StatusAwaitingAttribution))
	require.NoError(t, mem.UpdateCycle(ctx, first))

	second := *cycle
	require.NoError(t, second.Transition(campaign.StatusAwaitingAttribution))
	assert.ErrorIs(t, mem.UpdateCycle(ctx, second), campaign.ErrCycleConflict)
}

func TestMemory_UpdateCycleLeavesCountersAlone(t *testing.T) {
	// UpdateCycle writes status/winner/completed_at only; counter columns
	// move through the increment methods. A caller holding a snapshot
	// from before an increment must not roll the counter back.
	mem := store.NewMemory()
	ctx := context.Background()
	cycle := newCycle(t, mem, 625)

	require.NoError(t, mem.IncrementSent(ctx, cycle.ID, campaign.VariantA, time.Now().UTC()))

	snapshot, err := mem.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.NoError(t, snapshot.Transition(campaign.StatusAwaitingAttribution))
	snapshot.SentA = 0
	require.NoError(t, mem.UpdateCycle(ctx, *snapshot))

	got, err := mem.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusAwaitingAttribution, got.Status)
	assert.Equal(t, 1, got.SentA, "counter survives the status write")
}

func TestMemory_OneSendPerContactPerCycle(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	cycle := newCycle(t, mem, 625)

	at := time.Now().UTC()
	require.NoError(t, mem.AppendSend(ctx, campaign.SendRecord{
		ID: "send-1", CycleID: cycle.ID, CampaignID: "camp-1",
		ContactPhone: "+16175551234", Variant: campaign.VariantA, SentAt: at,
	}))
	err := mem.AppendSend(ctx, campaign.SendRecord{
		ID: "send-2", CycleID: cycle.ID, CampaignID: "camp-1",
		ContactPhone: "+16175551234", Variant: campaign.VariantB, SentAt: at.Add(time.Minute),
	})
	require.Error(t, err)

	sends, err := mem.ListSends(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Len(t, sends, 1)
}

func TestMemory_IncrementSentGuardsTarget(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	cycle := newCycle(t, mem, 1)

	at := time.Now().UTC()
	require.NoError(t, mem.IncrementSent(ctx, cycle.ID, campaign.VariantA, at))
	assert.ErrorIs(t, mem.IncrementSent(ctx, cycle.ID, campaign.VariantA, at),
		campaign.ErrSampleTargetReached)

	got, err := mem.GetCycle(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SentA)
	require.NotNil(t, got.LastSendAt)
}

func TestMemory_AppendEventDeduplicates(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	event := campaign.ResponseEvent{
		ID: "event-1", EventKey: "SM-1", ContactPhone: "+16175551234",
		Body: "yes", ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, mem.AppendEvent(ctx, event))

	event.ID = "event-2"
	assert.ErrorIs(t, mem.AppendEvent(ctx, event), campaign.ErrDuplicateEvent)
}

func TestMemory_OptOutSurvivesReimport(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveContact(ctx, campaign.Contact{
		Phone: "+16175551234", CreatedAt: time.Now().UTC(),
	}))
	optedAt := time.Now().UTC()
	require.NoError(t, mem.MarkOptedOut(ctx, "+16175551234", optedAt))

	require.NoError(t, mem.SaveContact(ctx, campaign.Contact{
		Phone: "+16175551234", Name: "Back Again", CreatedAt: time.Now().UTC(),
	}))

	got, err := mem.GetContact(ctx, "+16175551234")
	require.NoError(t, err)
	assert.True(t, got.OptedOut)
	require.NotNil(t, got.OptedOutAt)
	assert.True(t, got.OptedOutAt.Equal(optedAt))
}

func TestMemory_QueryCandidatesExclusions(t *testing.T) {
	// Same four-way split the SQLite store is tested with: clean,
	// opted out, contacted this cycle, prior responder.
	mem := store.NewMemory()
	ctx := context.Background()
	cycle := newCycle(t, mem, 625)

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	phones := []campaign.PhoneNumber{"+16175550001", "+16175550002", "+16175550003", "+16175550004"}
	for i, p := range phones {
		require.NoError(t, mem.SaveContact(ctx, campaign.Contact{
			Phone: p, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, mem.MarkOptedOut(ctx, phones[1], base))
	require.NoError(t, mem.AppendSend(ctx, campaign.SendRecord{
		ID: "send-1", CycleID: cycle.ID, CampaignID: "camp-1",
		ContactPhone: phones[2], Variant: campaign.VariantA, SentAt: base,
	}))
	require.NoError(t, mem.AppendEvent(ctx, campaign.ResponseEvent{
		ID: "event-1", EventKey: "key-1", ContactPhone: phones[3],
		Body: "yes", ReceivedAt: base, Attributed: true,
	}))

	got, err := mem.QueryCandidates(ctx, campaign.CandidateQuery{
		CycleID: cycle.ID, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, phones[0], got[0].Phone)

	got, err = mem.QueryCandidates(ctx, campaign.CandidateQuery{
		CycleID: cycle.ID, IncludeResponders: true, Limit: 10,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2, "responder returns when allowed")
}
