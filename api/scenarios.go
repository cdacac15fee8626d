/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates contacts, a campaign,
	and a cycle in a state that demonstrates a specific part of the loop.

AVAILABLE SCENARIOS:

	fresh-start:      Contact list loaded, first cycle running, nothing sent
	mid-cycle:        Cycle partway through with uneven responses per arm
	awaiting-winner:  Both samples full, attribution window still open
	ready-to-rotate:  Winner declared, waiting for the next challenger text

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Import a contact list
 3. Create a campaign with small demo caps
 4. Start a cycle and seed sends/responses to reach the target state

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mid-cycle"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers, ResetDatabase
  - server.go: route wiring
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/attackacrack/campaign-engine/campaign"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "Contact list imported, first cycle running, nothing sent yet",
	},
	{
		ID:          "mid-cycle",
		Name:        "Mid Cycle",
		Description: "Cycle partway to target with responses trickling in",
	},
	{
		ID:          "awaiting-winner",
		Name:        "Awaiting Winner",
		Description: "Both samples full; attribution window still open",
	},
	{
		ID:          "ready-to-rotate",
		Name:        "Ready To Rotate",
		Description: "Winner declared; next challenger text wanted",
	},
}

// resetter is implemented by stores that support a full wipe. The
// SQLite and in-memory stores both do; the interface keeps Reset off
// the engine's persistence surface.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// ResetDatabase wipes all data. Dev only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Store does not support reset", nil)
		return
	}
	if err := rs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Store does not support reset", nil)
		return
	}
	if err := rs.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = h.loadFreshStartScenario(ctx)
	case "mid-cycle":
		err = h.loadMidCycleScenario(ctx)
	case "awaiting-winner":
		err = h.loadAwaitingWinnerScenario(ctx)
	case "ready-to-rotate":
		err = h.loadReadyToRotateScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoCampaign creates a campaign with small caps so demos complete in
// a few forced ticks instead of weeks.
func (h *Handler) demoCampaign(ctx context.Context, name string, target int) (*campaign.Campaign, error) {
	c := campaign.Campaign{
		ID:                campaign.NewCampaignID(),
		Name:              name,
		Timezone:          h.Defaults.Timezone,
		DailyCap:          h.Defaults.DailyCap,
		BatchSize:         h.Defaults.BatchSize,
		TargetPerVariant:  target,
		WindowStartHour:   h.Defaults.WindowStartHour,
		WindowEndHour:     h.Defaults.WindowEndHour,
		AttributionWindow: h.Defaults.AttributionWindow,
		RecontactReplied:  h.Defaults.RecontactReplied,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.Store.SaveCampaign(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// seedContacts imports n demo contacts with sequential US numbers.
func (h *Handler) seedContacts(ctx context.Context, n int) ([]campaign.Contact, error) {
	names := []string{"Alice", "Ben", "Carla", "Dev", "Elena", "Frank", "Grace", "Hugo", "Iris", "Jordan"}
	contacts := make([]campaign.Contact, 0, n)
	base := time.Now().UTC().Add(-24 * time.Hour)
	for i := 0; i < n; i++ {
		phone, err := campaign.NormalizePhone(fmt.Sprintf("+1617555%04d", i))
		if err != nil {
			return nil, err
		}
		c := campaign.Contact{
			Phone:     phone,
			Name:      names[i%len(names)],
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := h.Store.SaveContact(ctx, c); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// seedSends simulates count dispatches to one arm, spread over the past
// hours, updating the cycle counters and send log exactly as the
// scheduler would.
func (h *Handler) seedSends(ctx context.Context, cycle *campaign.CampaignCycle, v campaign.Variant, contacts []campaign.Contact, count int, respond int) error {
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		sentAt := now.Add(-time.Duration(count-i) * time.Minute)
		rec := campaign.SendRecord{
			ID:           campaign.SendRecordID(uuid.NewString()),
			CycleID:      cycle.ID,
			CampaignID:   cycle.CampaignID,
			ContactPhone: contacts[i].Phone,
			Variant:      v,
			SentAt:       sentAt,
			MessageID:    "demo-" + uuid.NewString(),
		}
		if err := h.Store.AppendSend(ctx, rec); err != nil {
			return err
		}
		if err := h.Store.IncrementSent(ctx, cycle.ID, v, sentAt); err != nil {
			return err
		}
		if err := h.Store.MarkContacted(ctx, contacts[i].Phone, sentAt); err != nil {
			return err
		}

		if i < respond {
			event := campaign.ResponseEvent{
				ID:           campaign.EventID(uuid.NewString()),
				EventKey:     "demo-reply-" + uuid.NewString(),
				SendRecordID: rec.ID,
				CycleID:      cycle.ID,
				ContactPhone: contacts[i].Phone,
				Body:         "Yes, tell me more",
				ReceivedAt:   sentAt.Add(30 * time.Second),
				Attributed:   true,
				CreatedAt:    now,
			}
			if err := h.Store.AppendEvent(ctx, event); err != nil {
				return err
			}
			if err := h.Store.IncrementResponse(ctx, cycle.ID, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadFreshStartScenario: contacts in, cycle running, nothing sent.
func (h *Handler) loadFreshStartScenario(ctx context.Context) error {
	if _, err := h.seedContacts(ctx, 40); err != nil {
		return err
	}
	c, err := h.demoCampaign(ctx, "Spring Reactivation", 10)
	if err != nil {
		return err
	}

	cycle, err := campaign.NewCycle(c.ID,
		"Hi {name}, we have an opening this week. Interested?",
		"Hi {name}, quick question about your last visit.",
		c.TargetPerVariant, time.Now().UTC())
	if err != nil {
		return err
	}
	return h.Store.CreateCycle(ctx, *cycle)
}

// loadMidCycleScenario: partway to target, arm B pulling ahead.
func (h *Handler) loadMidCycleScenario(ctx context.Context) error {
	contacts, err := h.seedContacts(ctx, 40)
	if err != nil {
		return err
	}
	c, err := h.demoCampaign(ctx, "Spring Reactivation", 10)
	if err != nil {
		return err
	}

	cycle, err := campaign.NewCycle(c.ID,
		"Hi {name}, we have an opening this week. Interested?",
		"Hi {name}, quick question about your last visit.",
		c.TargetPerVariant, time.Now().UTC().Add(-48*time.Hour))
	if err != nil {
		return err
	}
	if err := h.Store.CreateCycle(ctx, *cycle); err != nil {
		return err
	}

	if err := h.seedSends(ctx, cycle, campaign.VariantA, contacts[:6], 6, 1); err != nil {
		return err
	}
	return h.seedSends(ctx, cycle, campaign.VariantB, contacts[6:12], 6, 2)
}

// loadAwaitingWinnerScenario: samples full, window still open.
func (h *Handler) loadAwaitingWinnerScenario(ctx context.Context) error {
	contacts, err := h.seedContacts(ctx, 30)
	if err != nil {
		return err
	}
	c, err := h.demoCampaign(ctx, "Spring Reactivation", 10)
	if err != nil {
		return err
	}

	cycle, err := campaign.NewCycle(c.ID,
		"Hi {name}, we have an opening this week. Interested?",
		"Hi {name}, quick question about your last visit.",
		c.TargetPerVariant, time.Now().UTC().Add(-72*time.Hour))
	if err != nil {
		return err
	}
	if err := h.Store.CreateCycle(ctx, *cycle); err != nil {
		return err
	}

	if err := h.seedSends(ctx, cycle, campaign.VariantA, contacts[:10], 10, 2); err != nil {
		return err
	}
	if err := h.seedSends(ctx, cycle, campaign.VariantB, contacts[10:20], 10, 3); err != nil {
		return err
	}

	fresh, err := h.Store.GetCycle(ctx, cycle.ID)
	if err != nil {
		return err
	}
	if err := fresh.Transition(campaign.StatusAwaitingAttribution); err != nil {
		return err
	}
	return h.Store.UpdateCycle(ctx, *fresh)
}

// loadReadyToRotateScenario: winner declared, rotation pending.
func (h *Handler) loadReadyToRotateScenario(ctx context.Context) error {
	contacts, err := h.seedContacts(ctx, 30)
	if err != nil {
		return err
	}
	c, err := h.demoCampaign(ctx, "Spring Reactivation", 10)
	if err != nil {
		return err
	}

	started := time.Now().UTC().Add(-7 * 24 * time.Hour)
	cycle, err := campaign.NewCycle(c.ID,
		"Hi {name}, we have an opening this week. Interested?",
		"Hi {name}, quick question about your last visit.",
		c.TargetPerVariant, started)
	if err != nil {
		return err
	}
	if err := h.Store.CreateCycle(ctx, *cycle); err != nil {
		return err
	}

	if err := h.seedSends(ctx, cycle, campaign.VariantA, contacts[:10], 10, 2); err != nil {
		return err
	}
	if err := h.seedSends(ctx, cycle, campaign.VariantB, contacts[10:20], 10, 4); err != nil {
		return err
	}

	fresh, err := h.Store.GetCycle(ctx, cycle.ID)
	if err != nil {
		return err
	}
	for _, status := range []campaign.CycleStatus{
		campaign.StatusAwaitingAttribution,
		campaign.StatusWinnerDeclared,
		campaign.StatusNeedsNewVariant,
	} {
		if err := fresh.Transition(status); err != nil {
			return err
		}
		if status == campaign.StatusWinnerDeclared {
			fresh.Winner = campaign.VariantB
			completed := time.Now().UTC()
			fresh.CompletedAt = &completed
		}
		if err := h.Store.UpdateCycle(ctx, *fresh); err != nil {
			return err
		}
		fresh, err = h.Store.GetCycle(ctx, fresh.ID)
		if err != nil {
			return err
		}
	}
	return nil
}
