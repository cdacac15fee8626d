package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attackacrack/campaign-engine/api"
	"github.com/attackacrack/campaign-engine/campaign"
	"github.com/attackacrack/campaign-engine/campaign/store"
	"github.com/attackacrack/campaign-engine/config"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := api.NewHandler(mem, config.Default().Campaign)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createCampaign(t *testing.T, srv *httptest.Server) api.CampaignDTO {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns", api.CreateCampaignRequest{Name: "Reactivation"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.CampaignDTO](t, resp)
}

// =============================================================================
// CONTACT ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateContactNormalizesPhone(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contacts",
		api.CreateContactRequest{Phone: "(617) 555-1234", Name: "Sarah"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[api.ContactDTO](t, resp)
	assert.Equal(t, "+16175551234", got.Phone)
}

func TestAPI_CreateContactInvalidPhone(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contacts",
		api.CreateContactRequest{Phone: "not-a-phone"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ImportContactsPartialReject(t *testing.T) {
	// GIVEN: A batch with one bad row
	// WHEN: Importing
	// THEN: Good rows import; the bad row is reported, not fatal

	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contacts/import", api.ImportContactsRequest{
		Contacts: []api.CreateContactRequest{
			{Phone: "617-555-0001", Name: "A"},
			{Phone: "bogus", Name: "B"},
			{Phone: "617-555-0003", Name: "C"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[api.ImportResultDTO](t, resp)
	assert.Equal(t, 2, got.Imported)
	assert.Equal(t, 1, got.Rejected)
	assert.Len(t, got.Errors, 1)
}

func TestAPI_ManualOptOut(t *testing.T) {
	srv, mem := newTestServer(t)
	require.NoError(t, mem.SaveContact(context.Background(), campaign.Contact{
		Phone: "+16175551234", Name: "Sarah", CreatedAt: time.Now().UTC(),
	}))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/contacts/+16175551234/optout", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	contact, err := mem.GetContact(context.Background(), "+16175551234")
	require.NoError(t, err)
	assert.True(t, contact.OptedOut)
}

// =============================================================================
// CAMPAIGN ENDPOINT TESTS
// =============================================================================

func TestAPI_CreateCampaignUsesDefaults(t *testing.T) {
	srv, _ := newTestServer(t)
	got := createCampaign(t, srv)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 125, got.DailyCap)
	assert.Equal(t, 25, got.BatchSize)
	assert.Equal(t, 625, got.TargetPerVariant)
	assert.Equal(t, "48h0m0s", got.AttributionWindow)
	assert.Equal(t, "America/New_York", got.Timezone)
}

func TestAPI_CreateCampaignOverrides(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns", api.CreateCampaignRequest{
		Name:              "Small Test",
		DailyCap:          50,
		BatchSize:         10,
		TargetPerVariant:  100,
		AttributionWindow: "24h",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[api.CampaignDTO](t, resp)
	assert.Equal(t, 50, got.DailyCap)
	assert.Equal(t, 10, got.BatchSize)
	assert.Equal(t, 100, got.TargetPerVariant)
	assert.Equal(t, "24h0m0s", got.AttributionWindow)
}

func TestAPI_CreateCampaignValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	for name, req := range map[string]api.CreateCampaignRequest{
		"missing name":        {},
		"unknown timezone":    {Name: "X", Timezone: "Mars/Olympus"},
		"batch exceeds cap":   {Name: "X", DailyCap: 10, BatchSize: 20},
		"bad window duration": {Name: "X", AttributionWindow: "two days"},
	} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns", req)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestAPI_UnknownCampaign404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/campaigns/ghost", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PauseResume(t *testing.T) {
	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/pause", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := mem.GetCampaign(context.Background(), campaign.CampaignID(c.ID))
	require.NoError(t, err)
	assert.True(t, stored.Paused)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/resume", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err = mem.GetCampaign(context.Background(), campaign.CampaignID(c.ID))
	require.NoError(t, err)
	assert.False(t, stored.Paused)
}

// =============================================================================
// CYCLE ENDPOINT TESTS
// =============================================================================

func TestAPI_StartFirstCycle(t *testing.T) {
	srv, _ := newTestServer(t)
	c := createCampaign(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles",
		api.StartCycleRequest{VariantAText: "Hi {name}, A", VariantBText: "Hi {name}, B"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[api.CycleDTO](t, resp)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 625, got.TargetPerVariant)
	assert.Zero(t, got.SentA)
}

func TestAPI_StartCycleValidation(t *testing.T) {
	// Empty or duplicate variant texts are client errors.
	srv, _ := newTestServer(t)
	c := createCampaign(t, srv)

	for name, req := range map[string]api.StartCycleRequest{
		"missing A":  {VariantBText: "only B"},
		"missing B":  {VariantAText: "only A"},
		"duplicates": {VariantAText: "same", VariantBText: "same"},
	} {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles", req)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestAPI_StartCycleWhileRunningConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	c := createCampaign(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles",
		api.StartCycleRequest{VariantAText: "A", VariantBText: "B"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles",
		api.StartCycleRequest{VariantAText: "C", VariantBText: "D"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_RotationCarriesWinner(t *testing.T) {
	// GIVEN: A finished cycle parked at needs_new_variant with winner B
	// WHEN: POSTing only the challenger text
	// THEN: The new cycle's champion is the old winner's text

	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)
	ctx := context.Background()

	old, err := campaign.NewCycle(campaign.CampaignID(c.ID), "old champ", "old challenger",
		625, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, old.Transition(campaign.StatusAwaitingAttribution))
	require.NoError(t, old.Transition(campaign.StatusWinnerDeclared))
	old.Winner = campaign.VariantB
	require.NoError(t, old.Transition(campaign.StatusNeedsNewVariant))
	require.NoError(t, mem.CreateCycle(ctx, *old))

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles",
		api.StartCycleRequest{VariantBText: "fresh challenger"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	got := decode[api.CycleDTO](t, resp)
	assert.Equal(t, "old challenger", got.VariantAText)
	assert.Equal(t, "fresh challenger", got.VariantBText)
	assert.Equal(t, "running", got.Status)
}

func TestAPI_CurrentCycle(t *testing.T) {
	srv, _ := newTestServer(t)
	c := createCampaign(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/campaigns/"+c.ID+"/cycles/current", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no cycles yet")

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/campaigns/"+c.ID+"/cycles",
		api.StartCycleRequest{VariantAText: "A", VariantBText: "B"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/campaigns/"+c.ID+"/cycles/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.CycleDTO](t, resp)
	assert.Equal(t, "running", got.Status)
}

// =============================================================================
// WEBHOOK ENDPOINT TESTS
// =============================================================================

func webhookFixture(t *testing.T, mem *store.Memory, c api.CampaignDTO) campaign.SendRecord {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, mem.SaveContact(ctx, campaign.Contact{
		Phone: "+16175551234", Name: "Sarah", CreatedAt: time.Now().UTC(),
	}))
	cycle, err := campaign.NewCycle(campaign.CampaignID(c.ID), "A", "B", 625,
		time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, mem.CreateCycle(ctx, *cycle))

	rec := campaign.SendRecord{
		ID: "send-1", CycleID: cycle.ID, CampaignID: campaign.CampaignID(c.ID),
		ContactPhone: "+16175551234", Variant: campaign.VariantA,
		SentAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, mem.AppendSend(ctx, rec))
	return rec
}

func TestAPI_WebhookRecordsResponse(t *testing.T) {
	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)
	rec := webhookFixture(t, mem, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook/inbound", api.InboundMessageRequest{
		MessageSID: "SM-1",
		From:       "+16175551234",
		Body:       "Yes!",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[map[string]any](t, resp)
	assert.Equal(t, "recorded", got["status"])
	assert.Equal(t, true, got["attributed"])

	cycle, err := mem.GetCycle(context.Background(), rec.CycleID)
	require.NoError(t, err)
	assert.Equal(t, 1, cycle.ResponsesA)
}

func TestAPI_WebhookDuplicateDeliveryIdempotent(t *testing.T) {
	// Redelivery acknowledges with 200 so the provider stops retrying,
	// but the counter moves only once.
	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)
	rec := webhookFixture(t, mem, c)

	body := api.InboundMessageRequest{MessageSID: "SM-1", From: "+16175551234", Body: "Yes!"}
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook/inbound", body)
		require.Equal(t, http.StatusOK, resp.StatusCode, "delivery %d", i)
		got := decode[map[string]any](t, resp)
		if i == 0 {
			assert.Equal(t, "recorded", got["status"])
		} else {
			assert.Equal(t, "duplicate", got["status"])
		}
	}

	cycle, err := mem.GetCycle(context.Background(), rec.CycleID)
	require.NoError(t, err)
	assert.Equal(t, 1, cycle.ResponsesA)
}

func TestAPI_WebhookOptOut(t *testing.T) {
	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)
	webhookFixture(t, mem, c)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook/inbound", api.InboundMessageRequest{
		From: "+16175551234",
		Body: "STOP",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, true, got["opt_out"])

	contact, err := mem.GetContact(context.Background(), "+16175551234")
	require.NoError(t, err)
	assert.True(t, contact.OptedOut)
}

func TestAPI_WebhookValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/webhook/inbound",
		api.InboundMessageRequest{From: "+16175551234"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing body")

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/webhook/inbound",
		api.InboundMessageRequest{From: "junk", Body: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "bad phone")
}

// =============================================================================
// STATS ENDPOINT TESTS
// =============================================================================

func TestAPI_CampaignStats(t *testing.T) {
	srv, mem := newTestServer(t)
	c := createCampaign(t, srv)
	ctx := context.Background()

	cycle, err := campaign.NewCycle(campaign.CampaignID(c.ID), "A", "B", 2,
		time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, mem.CreateCycle(ctx, *cycle))

	at := time.Now().UTC()
	for i, v := range []campaign.Variant{campaign.VariantA, campaign.VariantB} {
		require.NoError(t, mem.AppendSend(ctx, campaign.SendRecord{
			ID:      campaign.SendRecordID(fmt.Sprintf("send-%d", i)),
			CycleID: cycle.ID, CampaignID: campaign.CampaignID(c.ID),
			ContactPhone: campaign.PhoneNumber(fmt.Sprintf("+161755512%02d", i)),
			Variant:      v, SentAt: at,
		}))
		require.NoError(t, mem.IncrementSent(ctx, cycle.ID, v, at))
	}
	require.NoError(t, mem.IncrementResponse(ctx, cycle.ID, campaign.VariantA))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/campaigns/"+c.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[api.CampaignStatsDTO](t, resp)
	assert.Equal(t, 1, got.CycleCount)
	assert.Equal(t, 2, got.TotalSent)
	assert.Equal(t, 1, got.TotalReplies)
	require.Len(t, got.Cycles, 1)
	assert.Equal(t, "100%", got.Cycles[0].RateA)
	assert.Equal(t, "0%", got.Cycles[0].RateB)
}
