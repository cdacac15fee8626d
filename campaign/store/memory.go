// Package store provides campaign.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/attackacrack/campaign-engine/campaign"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements campaign.Store with mutex-guarded maps. The single
// mutex is the serialization point the engine requires for counter
// mutations; SQLite gets the same property from row-level updates.
type Memory struct {
	mu        sync.RWMutex
	contacts  map[campaign.PhoneNumber]campaign.Contact
	campaigns map[campaign.CampaignID]campaign.Campaign
	cycles    map[campaign.CycleID]campaign.CampaignCycle
	sends     []campaign.SendRecord
	events    []campaign.ResponseEvent
	eventKeys map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		contacts:  make(map[campaign.PhoneNumber]campaign.Contact),
		campaigns: make(map[campaign.CampaignID]campaign.Campaign),
		cycles:    make(map[campaign.CycleID]campaign.CampaignCycle),
		eventKeys: make(map[string]bool),
	}
}

// Reset clears all state. Used by the demo scenario loader.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = make(map[campaign.PhoneNumber]campaign.Contact)
	m.campaigns = make(map[campaign.CampaignID]campaign.Campaign)
	m.cycles = make(map[campaign.CycleID]campaign.CampaignCycle)
	m.sends = nil
	m.events = nil
	m.eventKeys = make(map[string]bool)
	return nil
}

// =============================================================================
// CONTACTS
// =============================================================================

func (m *Memory) SaveContact(_ context.Context, c campaign.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.contacts[c.Phone]; ok && existing.OptedOut {
		// Opt-out is permanent; a re-import cannot resurrect a contact.
		c.OptedOut = true
		c.OptedOutAt = existing.OptedOutAt
	}
	m.contacts[c.Phone] = c
	return nil
}

func (m *Memory) GetContact(_ context.Context, phone campaign.PhoneNumber) (*campaign.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[phone]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListContacts(_ context.Context) ([]campaign.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]campaign.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out, nil
}

func (m *Memory) MarkOptedOut(_ context.Context, phone campaign.PhoneNumber, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[phone]
	if !ok {
		return campaign.ErrContactNotFound
	}
	if !c.OptedOut {
		c.OptedOut = true
		c.OptedOutAt = &at
		m.contacts[phone] = c
	}
	return nil
}

func (m *Memory) MarkContacted(_ context.Context, phone campaign.PhoneNumber, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[phone]
	if !ok {
		return campaign.ErrContactNotFound
	}
	c.LastContactedAt = &at
	m.contacts[phone] = c
	return nil
}

func (m *Memory) QueryCandidates(_ context.Context, q campaign.CandidateQuery) ([]campaign.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contactedInCycle := make(map[campaign.PhoneNumber]bool)
	for _, sr := range m.sends {
		if sr.CycleID == q.CycleID {
			contactedInCycle[sr.ContactPhone] = true
		}
	}
	responded := make(map[campaign.PhoneNumber]bool)
	if !q.IncludeResponders {
		for _, e := range m.events {
			if e.Attributed && !e.IsOptOut {
				responded[e.ContactPhone] = true
			}
		}
	}

	var all []campaign.Contact
	for _, c := range m.contacts {
		if c.OptedOut || contactedInCycle[c.Phone] || responded[c.Phone] {
			continue
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Phone < all[j].Phone
	})
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

// =============================================================================
// CAMPAIGNS
// =============================================================================

func (m *Memory) SaveCampaign(_ context.Context, c campaign.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return nil
}

func (m *Memory) GetCampaign(_ context.Context, id campaign.CampaignID) (*campaign.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCampaigns(_ context.Context) ([]campaign.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]campaign.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetPaused(_ context.Context, id campaign.CampaignID, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrCampaignNotFound
	}
	c.Paused = paused
	m.campaigns[id] = c
	return nil
}

// =============================================================================
// CYCLES
// =============================================================================

func (m *Memory) CreateCycle(_ context.Context, c campaign.CampaignCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.ID] = c
	return nil
}

func (m *Memory) GetCycle(_ context.Context, id campaign.CycleID) (*campaign.CampaignCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ActiveCycle(_ context.Context, campaignID campaign.CampaignID) (*campaign.CampaignCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *campaign.CampaignCycle
	for id := range m.cycles {
		c := m.cycles[id]
		if c.CampaignID != campaignID {
			continue
		}
		if latest == nil || c.StartedAt.After(latest.StartedAt) {
			cc := c
			latest = &cc
		}
	}
	return latest, nil
}

func (m *Memory) ListCycles(_ context.Context, campaignID campaign.CampaignID) ([]campaign.CampaignCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.CampaignCycle
	for _, c := range m.cycles {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) UpdateCycle(_ context.Context, c campaign.CampaignCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.cycles[c.ID]
	if !ok {
		return campaign.ErrCycleNotFound
	}
	if existing.Version != c.Version {
		return campaign.ErrCycleConflict
	}
	// Same column set the SQLite store writes. Counters and LastSendAt
	// only ever move through the increment methods.
	existing.Status = c.Status
	existing.Winner = c.Winner
	existing.CompletedAt = c.CompletedAt
	existing.Version++
	m.cycles[c.ID] = existing
	return nil
}

func (m *Memory) IncrementSent(_ context.Context, id campaign.CycleID, v campaign.Variant, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return campaign.ErrCycleNotFound
	}
	if c.SentCount(v) >= c.TargetPerVariant {
		return campaign.ErrSampleTargetReached
	}
	if v == campaign.VariantA {
		c.SentA++
	} else {
		c.SentB++
	}
	t := at
	c.LastSendAt = &t
	c.Version++
	m.cycles[id] = c
	return nil
}

func (m *Memory) IncrementResponse(_ context.Context, id campaign.CycleID, v campaign.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return campaign.ErrCycleNotFound
	}
	if v == campaign.VariantA {
		c.ResponsesA++
	} else {
		c.ResponsesB++
	}
	c.Version++
	m.cycles[id] = c
	return nil
}

// =============================================================================
// SEND LOG
// =============================================================================

func (m *Memory) AppendSend(_ context.Context, r campaign.SendRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror SQLite's unique (cycle_id, contact_phone) index.
	for _, sr := range m.sends {
		if sr.CycleID == r.CycleID && sr.ContactPhone == r.ContactPhone {
			return fmt.Errorf("contact %s already sent in cycle %s", r.ContactPhone, r.CycleID)
		}
	}
	m.sends = append(m.sends, r)
	return nil
}

func (m *Memory) CountSendsBetween(_ context.Context, campaignID campaign.CampaignID, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sr := range m.sends {
		if sr.CampaignID == campaignID && !sr.SentAt.Before(from) && sr.SentAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) LatestSendTo(_ context.Context, phone campaign.PhoneNumber, before time.Time) (*campaign.SendRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *campaign.SendRecord
	for i := range m.sends {
		sr := m.sends[i]
		if sr.ContactPhone != phone || sr.SentAt.After(before) {
			continue
		}
		if latest == nil || sr.SentAt.After(latest.SentAt) {
			cp := sr
			latest = &cp
		}
	}
	return latest, nil
}

func (m *Memory) ListSends(_ context.Context, cycleID campaign.CycleID) ([]campaign.SendRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.SendRecord
	for _, sr := range m.sends {
		if sr.CycleID == cycleID {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, e campaign.ResponseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventKeys[e.EventKey] {
		return campaign.ErrDuplicateEvent
	}
	m.eventKeys[e.EventKey] = true
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, phone campaign.PhoneNumber) ([]campaign.ResponseEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []campaign.ResponseEvent
	for _, e := range m.events {
		if e.ContactPhone == phone {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}
