/*
handlers.go - HTTP API handlers for the campaign engine

PURPOSE:
  Exposes the A/B campaign engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Contacts:
    GET    /api/contacts                 List all contacts
    POST   /api/contacts                 Create contact
    POST   /api/contacts/import          Bulk import contacts
    GET    /api/contacts/{phone}         Get contact details
    POST   /api/contacts/{phone}/optout  Manually opt a contact out

  Campaigns:
    GET    /api/campaigns                List campaigns
    POST   /api/campaigns                Create campaign
    GET    /api/campaigns/{id}           Get campaign details
    POST   /api/campaigns/{id}/pause     Pause sending
    POST   /api/campaigns/{id}/resume    Resume sending
    GET    /api/campaigns/{id}/stats     Per-cycle stats report

  Cycles:
    GET    /api/campaigns/{id}/cycles    Cycle history
    GET    /api/campaigns/{id}/cycles/current  Active cycle
    POST   /api/campaigns/{id}/cycles    Start first cycle / rotate

  Webhook:
    POST   /api/webhook/inbound          Inbound SMS (provider-neutral)

  Admin:
    POST   /api/admin/tick               Force a scheduler tick

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (version conflict, duplicate)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication and NO webhook signature verification.
  All endpoints are public. Front with a gateway before exposing.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/attackacrack/campaign-engine/campaign"
	"github.com/attackacrack/campaign-engine/config"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     campaign.Store
	Tracker   *campaign.ResponseTracker
	Defaults  config.CampaignDefaults
	Scheduler *CampaignScheduler

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store and defaults.
func NewHandler(store campaign.Store, defaults config.CampaignDefaults) *Handler {
	return &Handler{
		Store:    store,
		Tracker:  campaign.NewResponseTracker(store),
		Defaults: defaults,
	}
}

// =============================================================================
// CONTACT ENDPOINTS
// =============================================================================

// ListContacts returns all contacts.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.Store.ListContacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contacts", err)
		return
	}

	dtos := make([]ContactDTO, 0, len(contacts))
	for _, c := range contacts {
		dtos = append(dtos, toContactDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetContact returns one contact by phone number.
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	phone, err := campaign.NormalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid phone number", err)
		return
	}

	contact, err := h.Store.GetContact(r.Context(), phone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get contact", err)
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "Contact not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toContactDTO(*contact))
}

// CreateContact creates one contact.
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	phone, err := campaign.NormalizePhone(req.Phone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid phone number", err)
		return
	}

	contact := campaign.Contact{
		Phone:     phone,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveContact(r.Context(), contact); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create contact", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactDTO(contact))
}

// ImportContacts bulk-imports contacts. Rows that fail phone
// normalization are rejected individually; the rest import.
func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	var req ImportContactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "At least one contact is required", nil)
		return
	}

	result := ImportResultDTO{}
	now := time.Now().UTC()
	for i, row := range req.Contacts {
		phone, err := campaign.NormalizePhone(row.Phone)
		if err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", i, row.Phone, err))
			continue
		}
		contact := campaign.Contact{Phone: phone, Name: row.Name, CreatedAt: now}
		if err := h.Store.SaveContact(r.Context(), contact); err != nil {
			result.Rejected++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", i, row.Phone, err))
			continue
		}
		result.Imported++
	}
	writeJSON(w, http.StatusOK, result)
}

// OptOutContact manually opts a contact out (e.g. a verbal request).
// Same monotonic flag the STOP keyword sets.
func (h *Handler) OptOutContact(w http.ResponseWriter, r *http.Request) {
	phone, err := campaign.NormalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid phone number", err)
		return
	}

	if err := h.Store.MarkOptedOut(r.Context(), phone, time.Now().UTC()); err != nil {
		if campaign.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Contact not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to opt out contact", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phone": string(phone), "opted_out": true})
}

// =============================================================================
// CAMPAIGN ENDPOINTS
// =============================================================================

// ListCampaigns returns all campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Store.ListCampaigns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list campaigns", err)
		return
	}

	dtos := make([]CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		dtos = append(dtos, toCampaignDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCampaign returns one campaign.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCampaignDTO(*c))
}

// CreateCampaign creates a campaign. Omitted knobs inherit the
// configured defaults.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Campaign name is required", nil)
		return
	}

	c, err := h.buildCampaign(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid campaign configuration", err)
		return
	}

	if err := h.Store.SaveCampaign(r.Context(), *c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampaignDTO(*c))
}

// buildCampaign merges a create request over the configured defaults.
func (h *Handler) buildCampaign(req CreateCampaignRequest) (*campaign.Campaign, error) {
	d := h.Defaults
	c := &campaign.Campaign{
		ID:                campaign.NewCampaignID(),
		Name:              req.Name,
		Timezone:          d.Timezone,
		DailyCap:          d.DailyCap,
		BatchSize:         d.BatchSize,
		TargetPerVariant:  d.TargetPerVariant,
		WindowStartHour:   d.WindowStartHour,
		WindowEndHour:     d.WindowEndHour,
		AttributionWindow: d.AttributionWindow,
		RecontactReplied:  d.RecontactReplied,
		CreatedAt:         time.Now().UTC(),
	}

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", req.Timezone, err)
		}
		c.Timezone = req.Timezone
	}
	if req.DailyCap > 0 {
		c.DailyCap = req.DailyCap
	}
	if req.BatchSize > 0 {
		c.BatchSize = req.BatchSize
	}
	if c.BatchSize > c.DailyCap {
		return nil, fmt.Errorf("batch_size %d exceeds daily_cap %d", c.BatchSize, c.DailyCap)
	}
	if req.TargetPerVariant > 0 {
		c.TargetPerVariant = req.TargetPerVariant
	}
	if req.AttributionWindow != "" {
		window, err := time.ParseDuration(req.AttributionWindow)
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("invalid attribution_window %q", req.AttributionWindow)
		}
		c.AttributionWindow = window
	}
	if req.RecontactReplied != nil {
		c.RecontactReplied = *req.RecontactReplied
	}
	return c, nil
}

// PauseCampaign stops the scheduler from sending for this campaign.
// Takes effect before the next tick; never interrupts a tick in flight.
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// ResumeCampaign re-enables sending.
func (h *Handler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	if err := h.Store.SetPaused(r.Context(), c.ID, paused); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": string(c.ID), "paused": paused})
}

// GetCampaignStats reports per-cycle counters and response rates.
func (h *Handler) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	cycles, err := h.Store.ListCycles(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cycles", err)
		return
	}

	stats := CampaignStatsDTO{
		CampaignID: string(c.ID),
		CycleCount: len(cycles),
		Cycles:     make([]CycleStatsDTO, 0, len(cycles)),
	}
	for _, cy := range cycles {
		stats.TotalSent += cy.SentA + cy.SentB
		stats.TotalReplies += cy.ResponsesA + cy.ResponsesB
		stats.Cycles = append(stats.Cycles, CycleStatsDTO{
			CycleID:     string(cy.ID),
			Status:      string(cy.Status),
			SentA:       cy.SentA,
			SentB:       cy.SentB,
			ResponsesA:  cy.ResponsesA,
			ResponsesB:  cy.ResponsesB,
			RateA:       campaign.RateString(cy.ResponsesA, cy.SentA),
			RateB:       campaign.RateString(cy.ResponsesB, cy.SentB),
			Winner:      string(cy.Winner),
			StartedAt:   formatTime(cy.StartedAt),
			CompletedAt: formatTimePtr(cy.CompletedAt),
		})
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// CYCLE ENDPOINTS
// =============================================================================

// ListCycles returns a campaign's full cycle history, newest first.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	cycles, err := h.Store.ListCycles(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cycles", err)
		return
	}

	dtos := make([]CycleDTO, 0, len(cycles))
	for _, cy := range cycles {
		dtos = append(dtos, toCycleDTO(cy))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentCycle returns the active (most recently started) cycle.
func (h *Handler) GetCurrentCycle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	cycle, err := h.Store.ActiveCycle(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get cycle", err)
		return
	}
	if cycle == nil {
		writeError(w, http.StatusNotFound, "Campaign has no cycles yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// StartCycle starts the first cycle of a campaign, or rotates to the
// next cycle after a winner. The first cycle needs both variant texts.
// A rotation needs only the challenger text; the previous winner
// carries over as the new variant A.
func (h *Handler) StartCycle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCampaign(w, r)
	if !ok {
		return
	}

	var req StartCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	active, err := h.Store.ActiveCycle(r.Context(), c.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get cycle", err)
		return
	}

	var next *campaign.CampaignCycle
	switch {
	case active == nil:
		// First cycle: both texts required.
		next, err = campaign.NewCycle(c.ID, req.VariantAText, req.VariantBText, c.TargetPerVariant, time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid variant texts", err)
			return
		}

	case active.Status == campaign.StatusNeedsNewVariant:
		// Rotation: winner stays as champion, challenger comes in.
		next, err = active.Rotate(req.VariantBText, time.Now().UTC())
		if err != nil {
			if campaign.IsClientError(err) {
				writeError(w, http.StatusBadRequest, "Invalid challenger text", err)
				return
			}
			writeError(w, http.StatusConflict, "Cycle is not ready for a new variant", err)
			return
		}

	default:
		writeError(w, http.StatusConflict,
			fmt.Sprintf("Active cycle is %s; a new cycle can only start when none exists or the last needs a new variant", active.Status), nil)
		return
	}

	if err := h.Store.CreateCycle(r.Context(), *next); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create cycle", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleDTO(*next))
}

// =============================================================================
// WEBHOOK ENDPOINT
// =============================================================================

// InboundMessage receives one inbound SMS from the provider webhook.
// Idempotent: redelivery of the same event returns 200 without
// re-applying side effects.
func (h *Handler) InboundMessage(w http.ResponseWriter, r *http.Request) {
	var req InboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.From == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "from and body are required", nil)
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid received_at (use RFC3339)", err)
			return
		}
		receivedAt = t.UTC()
	}

	event, err := h.Tracker.RecordResponse(r.Context(), campaign.InboundMessage{
		EventID:    req.MessageSID,
		From:       req.From,
		Body:       req.Body,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		if errors.Is(err, campaign.ErrDuplicateEvent) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		if campaign.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Invalid inbound message", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record response", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "recorded",
		"event_id":   string(event.ID),
		"attributed": event.Attributed,
		"opt_out":    event.IsOptOut,
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ForceTick runs one scheduler pass immediately. Demo and ops tool;
// the same code path the timer drives.
func (h *Handler) ForceTick(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	h.Scheduler.RunNow()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ticked"})
}

// =============================================================================
// HELPERS
// =============================================================================

// loadCampaign resolves the {id} URL param. Writes the error response
// itself; callers bail out when ok is false.
func (h *Handler) loadCampaign(w http.ResponseWriter, r *http.Request) (*campaign.Campaign, bool) {
	id := campaign.CampaignID(chi.URLParam(r, "id"))
	c, err := h.Store.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get campaign", err)
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Campaign not found", nil)
		return nil, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
