/*
errors.go - Centralized error types for the campaign engine

PURPOSE:
  All engine error types in one place. Callers match with errors.Is /
  errors.As; the HTTP layer maps categories to status codes via the
  helpers at the bottom.

ERROR CATEGORIES:
  1. Input errors      - bad phone numbers, bad variant text
  2. Dispatch errors   - transport failures and timeouts
  3. Concurrency       - optimistic-lock conflicts on cycle rows
  4. Store errors      - missing records, duplicate events

SEE ALSO:
  - tracker.go:   returns ErrDuplicateEvent on redelivery
  - cycle.go:     returns InvalidVariantError on cycle creation
  - transport.go: wraps provider failures in TransportError
*/
package campaign

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPhone is returned when phone input cannot be canonicalized.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidVariant is returned when operator-supplied variant text is
	// empty or duplicates the other arm. Rejected at cycle creation, never
	// silently substituted.
	ErrInvalidVariant = errors.New("invalid variant text")

	// ErrTransportFailed is returned when the messaging provider rejects or
	// times out a send. The contact stays uncontacted for the cycle and
	// re-candidates on a later tick.
	ErrTransportFailed = errors.New("transport send failed")

	// ErrCycleConflict is returned when optimistic locking detects a
	// concurrent mutation of a cycle row. The loser retries its whole
	// batch on the next tick.
	ErrCycleConflict = errors.New("concurrent cycle modification detected")

	// ErrDuplicateEvent is returned when an inbound event with the same
	// dedupe key was already recorded. Expected under at-least-once
	// delivery; never an escalation.
	ErrDuplicateEvent = errors.New("duplicate inbound event")

	// ErrSampleTargetReached is returned when a sent-counter increment
	// would exceed the cycle's per-variant target. The store enforces
	// this as the last line of defense against allocator races.
	ErrSampleTargetReached = errors.New("variant sample target already reached")

	// ErrInvalidTransition is returned for a backward or skipped cycle
	// status transition.
	ErrInvalidTransition = errors.New("invalid cycle status transition")

	// ErrCampaignNotFound is returned when a referenced campaign doesn't exist.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrCycleNotFound is returned when a referenced cycle doesn't exist.
	ErrCycleNotFound = errors.New("cycle not found")

	// ErrContactNotFound is returned when a referenced contact doesn't exist.
	ErrContactNotFound = errors.New("contact not found")

	// ErrContactOptedOut is returned when a send is attempted to an
	// opted-out contact. Opt-out is permanent; this should never happen
	// through the allocator and indicates a caller bug.
	ErrContactOptedOut = errors.New("contact has opted out")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidPhoneError reports unparseable phone input.
type InvalidPhoneError struct {
	Raw string
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone number: %q", e.Raw)
}

func (e *InvalidPhoneError) Unwrap() error { return ErrInvalidPhone }

// InvalidVariantError reports rejected operator variant input.
type InvalidVariantError struct {
	Variant Variant
	Reason  string // "empty", "duplicate"
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("variant %s rejected: %s", e.Variant, e.Reason)
}

func (e *InvalidVariantError) Unwrap() error { return ErrInvalidVariant }

// TransportError reports a provider rejection or timeout for one send.
type TransportError struct {
	Phone  PhoneNumber
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s failed: %s", e.Phone, e.Reason)
}

func (e *TransportError) Unwrap() error { return ErrTransportFailed }

// TransitionError reports an illegal cycle status move.
type TransitionError struct {
	CycleID CycleID
	From    CycleStatus
	To      CycleStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cycle %s: cannot transition %s -> %s", e.CycleID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on a later tick.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCycleConflict) || errors.Is(err, ErrTransportFailed)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrInvalidVariant) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrContactOptedOut)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrCycleNotFound) ||
		errors.Is(err, ErrContactNotFound)
}
