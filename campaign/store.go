/*
store.go - Persistence interfaces for the campaign engine

PURPOSE:
  Defines the interface between the engine and the database. The send
  log is append-only; contact opt-out is write-once; cycle counters and
  status move through a single serialization point per cycle (the store
  implementation's row lock / mutex) so the scheduler tick and concurrent
  webhook deliveries cannot race each other's increments.

KEY INTERFACES:
  ContactStore:  contact records and candidate queries
  CampaignStore: campaign configuration records
  CycleStore:    cycle lifecycle, counters, optimistic versioning
  SendLog:       append-only dispatch log (the attribution join table)
  EventStore:    inbound events with dedupe

APPEND-ONLY CONTRACT:
  SendLog has no update or delete. A failed dispatch writes nothing; the
  contact simply remains a candidate for a later tick.

OPTIMISTIC VERSIONING:
  UpdateCycle carries the version the caller read. Implementations must
  reject stale writes with ErrCycleConflict and bump the version on every
  successful mutation (including counter increments), so two process
  instances can coordinate through the database alone.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:  production SQLite
  - campaign/store/memory.go: in-memory for tests/dev

SEE ALSO:
  - types.go: the records these interfaces persist
*/
package campaign

import (
	"context"
	"time"
)

// =============================================================================
// CONTACT STORE
// =============================================================================

// CandidateQuery selects contacts eligible for a send slot.
// Opted-out contacts are always excluded; contacts already sent to in
// CycleID are always excluded; prior responders are excluded unless
// IncludeResponders is set (campaign's recontact_replied flag).
type CandidateQuery struct {
	CycleID           CycleID
	IncludeResponders bool
	Limit             int
}

type ContactStore interface {
	SaveContact(ctx context.Context, c Contact) error
	GetContact(ctx context.Context, phone PhoneNumber) (*Contact, error)
	ListContacts(ctx context.Context) ([]Contact, error)

	// MarkOptedOut sets the opt-out flag. Monotonic: implementations
	// provide no way to clear it, and repeated calls keep the first
	// opt-out timestamp.
	MarkOptedOut(ctx context.Context, phone PhoneNumber, at time.Time) error

	// MarkContacted updates last_contacted_at after a successful dispatch.
	MarkContacted(ctx context.Context, phone PhoneNumber, at time.Time) error

	// QueryCandidates returns up to Limit eligible contacts, oldest first.
	QueryCandidates(ctx context.Context, q CandidateQuery) ([]Contact, error)
}

// =============================================================================
// CAMPAIGN STORE
// =============================================================================

type CampaignStore interface {
	SaveCampaign(ctx context.Context, c Campaign) error
	GetCampaign(ctx context.Context, id CampaignID) (*Campaign, error)
	ListCampaigns(ctx context.Context) ([]Campaign, error)

	// SetPaused flips the campaign pause flag. Takes effect before the
	// next scheduler tick; never interrupts a tick in progress.
	SetPaused(ctx context.Context, id CampaignID, paused bool) error
}

// =============================================================================
// CYCLE STORE
// =============================================================================

type CycleStore interface {
	CreateCycle(ctx context.Context, c CampaignCycle) error
	GetCycle(ctx context.Context, id CycleID) (*CampaignCycle, error)

	// ActiveCycle returns the most recently started cycle for a campaign,
	// or nil when the campaign has none yet.
	ActiveCycle(ctx context.Context, campaignID CampaignID) (*CampaignCycle, error)

	ListCycles(ctx context.Context, campaignID CampaignID) ([]CampaignCycle, error)

	// UpdateCycle persists status/winner/completed_at using the version
	// carried in c. Stale version -> ErrCycleConflict.
	UpdateCycle(ctx context.Context, c CampaignCycle) error

	// IncrementSent bumps the sent counter for one arm and records the
	// send timestamp. Fails with ErrSampleTargetReached rather than
	// exceed the per-variant target.
	IncrementSent(ctx context.Context, id CycleID, v Variant, at time.Time) error

	// IncrementResponse bumps the response counter for one arm.
	IncrementResponse(ctx context.Context, id CycleID, v Variant) error
}

// =============================================================================
// SEND LOG - Append-only
// =============================================================================

type SendLog interface {
	// AppendSend records one dispatched message. The ONLY write.
	AppendSend(ctx context.Context, r SendRecord) error

	// CountSendsBetween counts a campaign's sends with from <= sent_at < to.
	// Used by the rate limiter for daily-cap accounting.
	CountSendsBetween(ctx context.Context, campaignID CampaignID, from, to time.Time) (int, error)

	// LatestSendTo returns the most recent send to a phone with
	// sent_at <= before, or nil. The attribution lookup.
	LatestSendTo(ctx context.Context, phone PhoneNumber, before time.Time) (*SendRecord, error)

	ListSends(ctx context.Context, cycleID CycleID) ([]SendRecord, error)
}

// =============================================================================
// EVENT STORE - Inbound events, dedupe enforced
// =============================================================================

type EventStore interface {
	// AppendEvent records one inbound event. A repeated EventKey fails
	// with ErrDuplicateEvent; this is the idempotency gate for
	// at-least-once webhook delivery.
	AppendEvent(ctx context.Context, e ResponseEvent) error

	ListEvents(ctx context.Context, phone PhoneNumber) ([]ResponseEvent, error)
}

// Store is the full persistence surface the engine needs. Both the
// SQLite store and the in-memory store implement it.
type Store interface {
	ContactStore
	CampaignStore
	CycleStore
	SendLog
	EventStore
}
