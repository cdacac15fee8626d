/*
tracker.go - Inbound-reply attribution and opt-out handling

PURPOSE:
  Processes inbound messages delivered by the provider webhook. Each
  reply is matched to the most recent send to that phone; if the reply
  landed within the attribution window it counts toward that send's
  variant, otherwise it is kept for conversation history only. Opt-out
  keywords permanently exclude the contact regardless of attribution.

IDEMPOTENCY:
  Webhook delivery is at-least-once. Every event carries a dedupe key
  (provider event id when available, content hash otherwise); the event
  store's unique constraint is the gate, so a redelivered event can
  increment a response counter at most once.

ATTRIBUTION WINDOW:
  The boundary is INCLUSIVE: a reply at exactly sent_at + window counts.
  Encoded here once and covered by tests; do not re-derive elsewhere.

CONCURRENCY:
  RecordResponse runs on webhook goroutines concurrently with the
  scheduler tick. All counter mutations go through the store's
  serialization point; nothing here holds engine-level locks.

SEE ALSO:
  - optout.go:    the keyword set
  - evaluator.go: consumes the counters this maintains
*/
package campaign

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// ResponseTracker records inbound replies against the send log.
type ResponseTracker struct {
	Store Store
}

func NewResponseTracker(store Store) *ResponseTracker {
	return &ResponseTracker{Store: store}
}

// InboundMessage is one delivery from the inbound event source.
type InboundMessage struct {
	From       string // raw phone, canonicalized here
	Body       string
	ReceivedAt time.Time
	EventID    string // provider event id; optional
}

// EventKey returns the dedupe key for a delivery: the provider event id
// when present, otherwise a content hash of (from, body, received_at).
func (m InboundMessage) EventKey() string {
	if m.EventID != "" {
		return m.EventID
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s",
		m.From, m.Body, m.ReceivedAt.UTC().Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])
}

// RecordResponse processes one inbound message:
//  1. canonicalize the phone
//  2. attribute to the latest send within the attribution window
//  3. persist the event (dedupe gate - duplicates stop here)
//  4. apply opt-out if the body matches a keyword
//  5. bump the matched arm's response counter
//
// Returns the stored event. A redelivered duplicate returns
// ErrDuplicateEvent; an unmatched reply is NOT an error.
func (rt *ResponseTracker) RecordResponse(ctx context.Context, msg InboundMessage) (*ResponseEvent, error) {
	phone, err := NormalizePhone(msg.From)
	if err != nil {
		return nil, err
	}

	event := ResponseEvent{
		ID:           EventID(uuid.NewString()),
		EventKey:     msg.EventKey(),
		ContactPhone: phone,
		Body:         msg.Body,
		ReceivedAt:   msg.ReceivedAt,
		IsOptOut:     IsOptOutMessage(msg.Body),
		CreatedAt:    time.Now().UTC(),
	}

	// Attribution: most recent send to this phone at or before receipt,
	// counted only if receipt falls inside the window (inclusive edge).
	record, err := rt.Store.LatestSendTo(ctx, phone, msg.ReceivedAt)
	if err != nil {
		return nil, err
	}
	var matched *SendRecord
	if record != nil {
		window, werr := rt.attributionWindow(ctx, record)
		if werr != nil {
			return nil, werr
		}
		if !msg.ReceivedAt.After(record.SentAt.Add(window)) {
			matched = record
			event.SendRecordID = record.ID
			event.CycleID = record.CycleID
			event.Attributed = true
		} else {
			log.Printf("[Tracker] Reply from %s outside attribution window (sent %s, received %s); logged unattributed",
				phone, record.SentAt.Format(time.RFC3339), msg.ReceivedAt.Format(time.RFC3339))
		}
	} else {
		log.Printf("[Tracker] Reply from %s has no matching send; logged unattributed", phone)
	}

	// Dedupe gate: a duplicate delivery fails here, before any counter
	// or opt-out side effects repeat.
	if err := rt.Store.AppendEvent(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			return nil, ErrDuplicateEvent
		}
		return nil, err
	}

	if event.IsOptOut {
		if err := rt.optOut(ctx, phone, msg.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to opt out %s: %w", phone, err)
		}
		log.Printf("[Tracker] Contact %s opted out (keyword match)", phone)
	}

	if matched != nil {
		if err := rt.Store.IncrementResponse(ctx, matched.CycleID, matched.Variant); err != nil {
			return nil, fmt.Errorf("failed to count response for cycle %s: %w", matched.CycleID, err)
		}
	}

	return &event, nil
}

// optOut applies a keyword opt-out. A STOP from a number with no contact
// record still has to stick, so the unknown sender gets a contact row
// created already opted out rather than failing the delivery.
func (rt *ResponseTracker) optOut(ctx context.Context, phone PhoneNumber, at time.Time) error {
	err := rt.Store.MarkOptedOut(ctx, phone, at)
	if !errors.Is(err, ErrContactNotFound) {
		return err
	}
	optedAt := at
	return rt.Store.SaveContact(ctx, Contact{
		Phone:      phone,
		CreatedAt:  time.Now().UTC(),
		OptedOut:   true,
		OptedOutAt: &optedAt,
	})
}

// attributionWindow resolves the window for the campaign that produced
// the send.
func (rt *ResponseTracker) attributionWindow(ctx context.Context, r *SendRecord) (time.Duration, error) {
	c, err := rt.Store.GetCampaign(ctx, r.CampaignID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, ErrCampaignNotFound
	}
	return c.AttributionWindow, nil
}
