/*
Package campaign provides the core A/B campaign engine.

PURPOSE:
  This package contains the domain types and algorithms for running
  continuous two-armed message tests over a contact list: throttled
  business-hours sending, strict A/B sample balancing, inbound-reply
  attribution, and winner rotation. It has no HTTP or database code;
  persistence goes through the Store interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Contact: an outreach target, identified by E.164 phone number
  - Campaign: the long-lived test configuration (caps, hours, time zone)
  - CampaignCycle: one champion-vs-challenger test run
  - SendRecord: immutable log entry for one dispatched message
  - ResponseEvent: one inbound reply, attributed to a send where possible

DESIGN PRINCIPLES:
  1. Immutability: send records are append-only, never modified
  2. Monotonicity: opt-out is one-way; cycle status only moves forward
  3. Type Safety: strong typing for IDs and phone numbers
  4. Single writer: all cycle counter mutations flow through the Store

SEE ALSO:
  - ratelimit.go:  daily cap / business-hours throttling
  - allocator.go:  A/B sample balancing
  - tracker.go:    inbound-reply attribution and opt-out handling
  - evaluator.go:  winner declaration
  - cycle.go:      cycle state machine and rotation
*/
package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CampaignID string
type CycleID string
type SendRecordID string
type EventID string

// NewCampaignID mints a fresh campaign identifier.
func NewCampaignID() CampaignID {
	return CampaignID(uuid.NewString())
}

// PhoneNumber is a canonical E.164 phone number (e.g. "+16175551234").
// Always produced via NormalizePhone; never constructed from raw input.
type PhoneNumber string

// NormalizePhone canonicalizes raw phone input to E.164.
// Accepts formatting noise (spaces, dashes, dots, parens) and bare
// 10-digit US numbers, which get a +1 prefix.
func NormalizePhone(raw string) (PhoneNumber, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// formatting noise
		default:
			return "", &InvalidPhoneError{Raw: raw}
		}
	}

	s := b.String()
	digits := strings.TrimPrefix(s, "+")
	if len(digits) == 0 {
		return "", &InvalidPhoneError{Raw: raw}
	}

	if !strings.HasPrefix(s, "+") {
		if len(digits) == 10 {
			return PhoneNumber("+1" + digits), nil
		}
		if len(digits) == 11 && digits[0] == '1' {
			return PhoneNumber("+" + digits), nil
		}
		return "", &InvalidPhoneError{Raw: raw}
	}

	if len(digits) < 8 || len(digits) > 15 {
		return "", &InvalidPhoneError{Raw: raw}
	}
	return PhoneNumber(s), nil
}

// =============================================================================
// VARIANT - The two arms of a test
// =============================================================================

type Variant string

const (
	VariantA Variant = "A" // champion: carry-over winner from the previous cycle
	VariantB Variant = "B" // challenger: operator-supplied new text
)

// Other returns the opposite arm.
func (v Variant) Other() Variant {
	if v == VariantA {
		return VariantB
	}
	return VariantA
}

func (v Variant) Valid() bool { return v == VariantA || v == VariantB }

// =============================================================================
// CONTACT
// =============================================================================

// Contact is one outreach target. Identity is the phone number.
// OptedOut is monotonic: once true, the engine never sends again and
// never clears the flag.
type Contact struct {
	Phone           PhoneNumber
	Name            string
	OptedOut        bool
	OptedOutAt      *time.Time
	LastContactedAt *time.Time
	CreatedAt       time.Time
}

// =============================================================================
// CAMPAIGN - Long-lived test configuration
// =============================================================================

// Campaign holds the knobs for one continuous champion/challenger loop.
// Cycles come and go; the campaign persists.
type Campaign struct {
	ID                CampaignID
	Name              string
	Timezone          string // IANA name; business hours evaluate in this zone
	DailyCap          int    // max sends per business day
	BatchSize         int    // max sends granted per scheduler tick
	TargetPerVariant  int    // sample size each arm must reach
	WindowStartHour   int    // first sendable hour, inclusive (local)
	WindowEndHour     int    // first non-sendable hour (local)
	AttributionWindow time.Duration
	Paused            bool
	// RecontactReplied controls whether a contact who replied (non-opt-out)
	// in a previous cycle is eligible again. Default false: responders are
	// considered engaged and leave the cold-outreach pool.
	RecontactReplied bool
	CreatedAt        time.Time
}

// Location resolves the campaign's time zone. Falls back to UTC if the
// stored zone name is unknown so a bad record cannot halt scheduling.
func (c *Campaign) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// =============================================================================
// CAMPAIGN CYCLE - One champion-vs-challenger run
// =============================================================================

type CycleStatus string

const (
	StatusRunning             CycleStatus = "running"
	StatusAwaitingAttribution CycleStatus = "awaiting_attribution"
	StatusWinnerDeclared      CycleStatus = "winner_declared"
	StatusNeedsNewVariant     CycleStatus = "needs_new_variant"
)

// CampaignCycle is one complete A/B test run. Retained forever as a
// historical record; counters never decrease and never exceed
// TargetPerVariant.
type CampaignCycle struct {
	ID           CycleID
	CampaignID   CampaignID
	VariantAText string
	VariantBText string

	TargetPerVariant int
	SentA            int
	SentB            int
	ResponsesA       int
	ResponsesB       int

	Status      CycleStatus
	Winner      Variant // set when Status reaches winner_declared
	StartedAt   time.Time
	LastSendAt  *time.Time
	CompletedAt *time.Time

	// Version supports optimistic locking: every mutation increments it,
	// and status transitions require the version they read.
	Version int
}

// VariantText returns the message text for an arm.
func (c *CampaignCycle) VariantText(v Variant) string {
	if v == VariantA {
		return c.VariantAText
	}
	return c.VariantBText
}

// SentCount returns the dispatched count for an arm.
func (c *CampaignCycle) SentCount(v Variant) int {
	if v == VariantA {
		return c.SentA
	}
	return c.SentB
}

// TargetsReached reports whether both arms hit the sample target.
func (c *CampaignCycle) TargetsReached() bool {
	return c.SentA >= c.TargetPerVariant && c.SentB >= c.TargetPerVariant
}

// WinnerText returns the winning message text once a winner is declared.
func (c *CampaignCycle) WinnerText() string {
	if c.Winner == VariantB {
		return c.VariantBText
	}
	return c.VariantAText
}

// =============================================================================
// SEND RECORD - Append-only dispatch log
// =============================================================================

// SendRecord is one row per message actually dispatched. Immutable after
// creation; the join key for attributing inbound replies to a variant.
type SendRecord struct {
	ID           SendRecordID
	CycleID      CycleID
	CampaignID   CampaignID
	ContactPhone PhoneNumber
	Variant      Variant
	SentAt       time.Time
	MessageID    string // provider message id from the transport
}

// =============================================================================
// RESPONSE EVENT - One inbound reply
// =============================================================================

// ResponseEvent records an inbound reply. Attributed=false rows are kept
// for conversation history but excluded from variant statistics.
type ResponseEvent struct {
	ID           EventID
	EventKey     string       // dedupe key; unique per delivery
	SendRecordID SendRecordID // empty when unattributed
	CycleID      CycleID      // empty when unattributed
	ContactPhone PhoneNumber
	Body         string
	ReceivedAt   time.Time
	IsOptOut     bool
	Attributed   bool
	CreatedAt    time.Time
}

// =============================================================================
// ALLOCATION - Output of the variant allocator
// =============================================================================

// Allocation pairs a contact with the arm it should receive.
type Allocation struct {
	Contact Contact
	Variant Variant
}

// RenderMessage expands the {name} placeholder in a variant text for a
// specific contact. Unknown placeholders pass through untouched.
func RenderMessage(text string, contact Contact) string {
	name := contact.Name
	if name == "" {
		name = "there"
	}
	return strings.ReplaceAll(text, "{name}", name)
}

// WinnerSummary is what gets pushed to the notification sink when a
// cycle declares its winner.
type WinnerSummary struct {
	CycleID    CycleID
	CampaignID CampaignID
	Winner     Variant
	WinnerText string
	RateA      string // formatted percentage, e.g. "8.00%"
	RateB      string
}

func (s WinnerSummary) String() string {
	return fmt.Sprintf("cycle %s: variant %s wins (A %s vs B %s)",
		s.CycleID, s.Winner, s.RateA, s.RateB)
}
