/*
scheduler.go - Campaign tick loop

PURPOSE:
  The top-level control loop. Each tick, for every campaign: reserve
  capacity from the rate limiter, pull candidates, allocate variants,
  dispatch sends through the transport, and advance the cycle state
  machine (targets reached -> awaiting attribution -> winner declared ->
  needs new variant).

DESIGN:
  - Runs a background goroutine with a configurable tick interval
  - Pause is honored between ticks; a tick in progress always finishes
    its batch so there is no partial-send ambiguity
  - Dispatch happens under a bounded timeout and OUTSIDE any lock;
    counters move only after the transport confirms the send
  - A transport failure skips the contact; it re-candidates next tick
  - An optimistic-lock conflict abandons the tick's transition; the next
    tick re-reads and retries
  - No failure is fatal: errors are scoped to one contact, one tick, or
    one campaign, and logged

CONFIGURATION:
  - TickInterval:    how often to tick (default: 30 minutes)
  - DispatchTimeout: per-send transport budget (default: 10 seconds)
  - Enabled:         whether the loop runs (default: true)

USAGE:
  sched := NewCampaignScheduler(store, transport, notifier)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - campaign/ratelimit.go: capacity decisions
  - campaign/allocator.go: variant assignment
  - campaign/evaluator.go: winner declaration
*/
package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attackacrack/campaign-engine/campaign"
)

// CampaignScheduler drives all campaigns' send and evaluation loops.
type CampaignScheduler struct {
	Store     campaign.Store
	Transport campaign.MessageTransport
	Notifier  campaign.NotificationSink

	TickInterval    time.Duration
	DispatchTimeout time.Duration
	Enabled         bool

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	limiter   *campaign.RateLimiter
	allocator *campaign.VariantAllocator
	evaluator *campaign.WinnerEvaluator

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewCampaignScheduler creates a scheduler with default intervals.
func NewCampaignScheduler(store campaign.Store, transport campaign.MessageTransport, notifier campaign.NotificationSink) *CampaignScheduler {
	return &CampaignScheduler{
		Store:           store,
		Transport:       transport,
		Notifier:        notifier,
		TickInterval:    30 * time.Minute,
		DispatchTimeout: 10 * time.Second,
		Enabled:         true,
		Now:             time.Now,
		limiter:         campaign.NewRateLimiter(store),
		allocator:       campaign.NewVariantAllocator(),
		evaluator:       campaign.NewWinnerEvaluator(),
		stop:            make(chan bool),
	}
}

// Start begins the tick loop.
func (cs *CampaignScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.TickInterval)
	cs.wg.Add(1)

	go cs.run()

	log.Printf("[Scheduler] Started with tick interval: %v", cs.TickInterval)
}

// Stop stops the tick loop, waiting for an in-flight tick to finish.
func (cs *CampaignScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

// RunNow triggers an immediate tick (admin endpoint / tests).
func (cs *CampaignScheduler) RunNow() {
	cs.tick()
}

func (cs *CampaignScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.tick()

	for {
		select {
		case <-cs.ticker.C:
			cs.tick()
		case <-cs.stop:
			return
		}
	}
}

// tick processes every campaign once. Paused campaigns are skipped
// here, before any work begins, so pausing never interrupts a batch.
func (cs *CampaignScheduler) tick() {
	ctx := context.Background()

	campaigns, err := cs.Store.ListCampaigns(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing campaigns: %v", err)
		return
	}

	for i := range campaigns {
		c := campaigns[i]
		if c.Paused {
			continue
		}
		if err := cs.processCampaign(ctx, &c); err != nil {
			// Scoped to this campaign; the others still get their tick.
			log.Printf("[Scheduler] Campaign %s: %v", c.ID, err)
		}
	}
}

func (cs *CampaignScheduler) processCampaign(ctx context.Context, c *campaign.Campaign) error {
	cycle, err := cs.Store.ActiveCycle(ctx, c.ID)
	if err != nil {
		return err
	}
	if cycle == nil {
		// No cycle yet; waiting for the operator to start one.
		return nil
	}

	switch cycle.Status {
	case campaign.StatusRunning:
		return cs.processRunning(ctx, c, cycle)
	case campaign.StatusAwaitingAttribution:
		return cs.processAwaiting(ctx, c, cycle)
	default:
		// winner_declared is transient within a tick; needs_new_variant
		// waits on the operator.
		return nil
	}
}

// processRunning dispatches one throttled batch and advances the cycle
// once both samples are full.
func (cs *CampaignScheduler) processRunning(ctx context.Context, c *campaign.Campaign, cycle *campaign.CampaignCycle) error {
	if cycle.TargetsReached() {
		return cs.advance(ctx, cycle, campaign.StatusAwaitingAttribution)
	}

	now := cs.Now()
	capacity, err := cs.limiter.ReserveCapacity(ctx, c, now)
	if err != nil {
		return err
	}
	if capacity == 0 {
		return nil
	}

	candidates, err := cs.Store.QueryCandidates(ctx, campaign.CandidateQuery{
		CycleID:           cycle.ID,
		IncludeResponders: c.RecontactReplied,
		Limit:             capacity,
	})
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		log.Printf("[Scheduler] Campaign %s: no eligible contacts this tick", c.ID)
		return nil
	}

	allocations := cs.allocator.NextBatch(cycle, capacity, candidates)

	sent, failed := 0, 0
	for _, alloc := range allocations {
		if cs.dispatch(ctx, c, cycle, alloc) {
			sent++
		} else {
			failed++
		}
	}
	if sent > 0 || failed > 0 {
		log.Printf("[Scheduler] Campaign %s: dispatched %d, failed %d (A=%d B=%d of %d)",
			c.ID, sent, failed, cycle.SentA, cycle.SentB, cycle.TargetPerVariant)
	}

	// Reload for fresh counters and version before any transition.
	fresh, err := cs.Store.GetCycle(ctx, cycle.ID)
	if err != nil {
		return err
	}
	if fresh != nil && fresh.TargetsReached() {
		return cs.advance(ctx, fresh, campaign.StatusAwaitingAttribution)
	}
	return nil
}

// dispatch sends one message. The sent counter moves only after the
// transport confirms; a failure or timeout leaves the contact
// uncontacted for this cycle.
func (cs *CampaignScheduler) dispatch(ctx context.Context, c *campaign.Campaign, cycle *campaign.CampaignCycle, alloc campaign.Allocation) bool {
	text := campaign.RenderMessage(cycle.VariantText(alloc.Variant), alloc.Contact)

	sendCtx, cancel := context.WithTimeout(ctx, cs.DispatchTimeout)
	messageID, err := cs.Transport.Send(sendCtx, alloc.Contact.Phone, text)
	cancel()
	if err != nil {
		log.Printf("[Scheduler] Send to %s failed: %v", alloc.Contact.Phone, err)
		return false
	}

	sentAt := cs.Now()
	record := campaign.SendRecord{
		ID:           campaign.SendRecordID(uuid.NewString()),
		CycleID:      cycle.ID,
		CampaignID:   c.ID,
		ContactPhone: alloc.Contact.Phone,
		Variant:      alloc.Variant,
		SentAt:       sentAt,
		MessageID:    messageID,
	}
	if err := cs.Store.AppendSend(ctx, record); err != nil {
		log.Printf("[Scheduler] Failed to log send to %s: %v", alloc.Contact.Phone, err)
		return false
	}
	if err := cs.Store.IncrementSent(ctx, cycle.ID, alloc.Variant, sentAt); err != nil {
		log.Printf("[Scheduler] Failed to count send for cycle %s: %v", cycle.ID, err)
		return false
	}
	// Track locally so a long batch doesn't over-allocate one arm.
	if alloc.Variant == campaign.VariantA {
		cycle.SentA++
	} else {
		cycle.SentB++
	}
	if err := cs.Store.MarkContacted(ctx, alloc.Contact.Phone, sentAt); err != nil {
		log.Printf("[Scheduler] Failed to mark %s contacted: %v", alloc.Contact.Phone, err)
	}
	return true
}

// processAwaiting evaluates the cycle and, on a declared winner,
// notifies the operator and parks the cycle at needs_new_variant - all
// within the same tick.
func (cs *CampaignScheduler) processAwaiting(ctx context.Context, c *campaign.Campaign, cycle *campaign.CampaignCycle) error {
	result := cs.evaluator.Evaluate(cycle, c.AttributionWindow, cs.Now())
	if result == nil {
		return nil
	}

	completedAt := cs.Now()
	declared := *cycle
	if err := declared.Transition(campaign.StatusWinnerDeclared); err != nil {
		return err
	}
	declared.Winner = result.Winner
	declared.CompletedAt = &completedAt
	if err := cs.Store.UpdateCycle(ctx, declared); err != nil {
		if errors.Is(err, campaign.ErrCycleConflict) {
			log.Printf("[Scheduler] Cycle %s changed under us; will retry next tick", cycle.ID)
			return nil
		}
		return err
	}

	log.Printf("[Scheduler] Cycle %s: winner %s (A %s vs B %s)",
		cycle.ID, result.Winner, result.RateA.StringFixed(4), result.RateB.StringFixed(4))

	// Fire-and-forget: a notification failure never blocks rotation.
	if err := cs.Notifier.Notify(ctx, result.Summary(cycle)); err != nil {
		log.Printf("[Scheduler] Winner notification for cycle %s failed: %v", cycle.ID, err)
	}

	fresh, err := cs.Store.GetCycle(ctx, cycle.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return campaign.ErrCycleNotFound
	}
	return cs.advance(ctx, fresh, campaign.StatusNeedsNewVariant)
}

// advance performs one status transition through the optimistic lock.
// A conflict is not an error: the next tick re-reads and retries.
func (cs *CampaignScheduler) advance(ctx context.Context, cycle *campaign.CampaignCycle, to campaign.CycleStatus) error {
	next := *cycle
	if err := next.Transition(to); err != nil {
		return err
	}
	if err := cs.Store.UpdateCycle(ctx, next); err != nil {
		if errors.Is(err, campaign.ErrCycleConflict) {
			log.Printf("[Scheduler] Cycle %s changed under us; will retry next tick", cycle.ID)
			return nil
		}
		return err
	}
	log.Printf("[Scheduler] Cycle %s: %s -> %s", cycle.ID, cycle.Status, to)
	return nil
}

// NextRunTime returns when the next scheduled tick will occur.
func (cs *CampaignScheduler) NextRunTime() time.Time {
	return cs.Now().Add(cs.TickInterval)
}
