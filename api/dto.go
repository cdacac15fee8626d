/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication. These decouple the domain model
  from the external contract: fields can rename, validation stays in
  handlers, and the wire format can evolve without touching the engine.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Done in handlers, not here. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"time"

	"github.com/attackacrack/campaign-engine/campaign"
)

// =============================================================================
// CONTACTS
// =============================================================================

// ContactDTO represents a contact in API responses.
type ContactDTO struct {
	Phone           string `json:"phone"`
	Name            string `json:"name"`
	OptedOut        bool   `json:"opted_out"`
	OptedOutAt      string `json:"opted_out_at,omitempty"`
	LastContactedAt string `json:"last_contacted_at,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateContactRequest is the request to create or import one contact.
type CreateContactRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// ImportContactsRequest is the bulk-import payload.
type ImportContactsRequest struct {
	Contacts []CreateContactRequest `json:"contacts"`
}

// ImportResultDTO summarizes a bulk import.
type ImportResultDTO struct {
	Imported int      `json:"imported"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

// CampaignDTO represents a campaign in API responses.
type CampaignDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Timezone          string `json:"timezone"`
	DailyCap          int    `json:"daily_cap"`
	BatchSize         int    `json:"batch_size"`
	TargetPerVariant  int    `json:"target_per_variant"`
	WindowStartHour   int    `json:"window_start_hour"`
	WindowEndHour     int    `json:"window_end_hour"`
	AttributionWindow string `json:"attribution_window"`
	Paused            bool   `json:"paused"`
	RecontactReplied  bool   `json:"recontact_replied"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// CreateCampaignRequest creates a campaign. Zero-valued knobs fall back
// to the server's configured campaign defaults.
type CreateCampaignRequest struct {
	Name              string `json:"name"`
	Timezone          string `json:"timezone,omitempty"`
	DailyCap          int    `json:"daily_cap,omitempty"`
	BatchSize         int    `json:"batch_size,omitempty"`
	TargetPerVariant  int    `json:"target_per_variant,omitempty"`
	AttributionWindow string `json:"attribution_window,omitempty"` // Go duration, e.g. "48h"
	RecontactReplied  *bool  `json:"recontact_replied,omitempty"`
}

// =============================================================================
// CYCLES
// =============================================================================

// CycleDTO represents one A/B cycle.
type CycleDTO struct {
	ID               string `json:"id"`
	CampaignID       string `json:"campaign_id"`
	VariantAText     string `json:"variant_a_text"`
	VariantBText     string `json:"variant_b_text"`
	TargetPerVariant int    `json:"target_per_variant"`
	SentA            int    `json:"sent_a"`
	SentB            int    `json:"sent_b"`
	ResponsesA       int    `json:"responses_a"`
	ResponsesB       int    `json:"responses_b"`
	Status           string `json:"status"`
	Winner           string `json:"winner,omitempty"`
	StartedAt        string `json:"started_at"`
	LastSendAt       string `json:"last_send_at,omitempty"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

// StartCycleRequest starts the first cycle (both texts required) or
// rotates after a winner (challenger text only; variant_a is ignored
// because the winner carries over).
type StartCycleRequest struct {
	VariantAText string `json:"variant_a_text,omitempty"`
	VariantBText string `json:"variant_b_text"`
}

// CycleStatsDTO is one row of the campaign stats report.
type CycleStatsDTO struct {
	CycleID     string `json:"cycle_id"`
	Status      string `json:"status"`
	SentA       int    `json:"sent_a"`
	SentB       int    `json:"sent_b"`
	ResponsesA  int    `json:"responses_a"`
	ResponsesB  int    `json:"responses_b"`
	RateA       string `json:"rate_a"`
	RateB       string `json:"rate_b"`
	Winner      string `json:"winner,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// CampaignStatsDTO aggregates a campaign's cycle history.
type CampaignStatsDTO struct {
	CampaignID   string          `json:"campaign_id"`
	CycleCount   int             `json:"cycle_count"`
	TotalSent    int             `json:"total_sent"`
	TotalReplies int             `json:"total_replies"`
	Cycles       []CycleStatsDTO `json:"cycles"`
}

// =============================================================================
// WEBHOOK
// =============================================================================

// InboundMessageRequest is the provider-neutral inbound webhook payload.
type InboundMessageRequest struct {
	MessageSID string `json:"message_sid,omitempty"` // provider event id
	From       string `json:"from"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at,omitempty"` // RFC3339; defaults to now
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toContactDTO(c campaign.Contact) ContactDTO {
	return ContactDTO{
		Phone:           string(c.Phone),
		Name:            c.Name,
		OptedOut:        c.OptedOut,
		OptedOutAt:      formatTimePtr(c.OptedOutAt),
		LastContactedAt: formatTimePtr(c.LastContactedAt),
		CreatedAt:       formatTime(c.CreatedAt),
	}
}

func toCampaignDTO(c campaign.Campaign) CampaignDTO {
	return CampaignDTO{
		ID:                string(c.ID),
		Name:              c.Name,
		Timezone:          c.Timezone,
		DailyCap:          c.DailyCap,
		BatchSize:         c.BatchSize,
		TargetPerVariant:  c.TargetPerVariant,
		WindowStartHour:   c.WindowStartHour,
		WindowEndHour:     c.WindowEndHour,
		AttributionWindow: c.AttributionWindow.String(),
		Paused:            c.Paused,
		RecontactReplied:  c.RecontactReplied,
		CreatedAt:         formatTime(c.CreatedAt),
	}
}

func toCycleDTO(c campaign.CampaignCycle) CycleDTO {
	return CycleDTO{
		ID:               string(c.ID),
		CampaignID:       string(c.CampaignID),
		VariantAText:     c.VariantAText,
		VariantBText:     c.VariantBText,
		TargetPerVariant: c.TargetPerVariant,
		SentA:            c.SentA,
		SentB:            c.SentB,
		ResponsesA:       c.ResponsesA,
		ResponsesB:       c.ResponsesB,
		Status:           string(c.Status),
		Winner:           string(c.Winner),
		StartedAt:        formatTime(c.StartedAt),
		LastSendAt:       formatTimePtr(c.LastSendAt),
		CompletedAt:      formatTimePtr(c.CompletedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
