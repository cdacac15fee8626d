/*
Package sqlite provides a SQLite-backed implementation of the campaign
storage interfaces.

PURPOSE:
  Implements campaign.Store (contacts, campaigns, cycles, send log,
  inbound events) using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The send log is append-only:
  - No UPDATE statements on send_records
  - No DELETE statements on send_records
  A failed dispatch writes nothing; the contact re-candidates later.

OPTIMISTIC VERSIONING:
  campaign_cycles carries a version column. Status transitions update
  WHERE version = ?; a stale write touches zero rows and surfaces as
  campaign.ErrCycleConflict. Counter increments are single UPDATE
  statements guarded by the sample target, so concurrent webhook
  deliveries and the scheduler tick serialize at the row.

KEY TABLES:
  contacts:        outreach targets; opt-out is write-once
  campaigns:       throttle and window configuration
  campaign_cycles: A/B runs with counters and status
  send_records:    immutable dispatch log (attribution join table)
  response_events: inbound replies; event_key UNIQUE enforces dedupe

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/campaigns.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - campaign/store.go: interface definitions
  - campaign/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/attackacrack/campaign-engine/campaign"
)

// Store implements campaign.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Contacts (opt-out is write-once; no statement in this package clears it)
	CREATE TABLE IF NOT EXISTS contacts (
		phone TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		opted_out BOOLEAN NOT NULL DEFAULT FALSE,
		opted_out_at TEXT,
		last_contacted_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contacts_opted_out
		ON contacts(opted_out);

	-- Campaigns (throttle + window configuration)
	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		timezone TEXT NOT NULL,
		daily_cap INTEGER NOT NULL,
		batch_size INTEGER NOT NULL,
		target_per_variant INTEGER NOT NULL,
		window_start_hour INTEGER NOT NULL,
		window_end_hour INTEGER NOT NULL,
		attribution_window_secs INTEGER NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		recontact_replied BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Cycles (counters + status + optimistic version)
	CREATE TABLE IF NOT EXISTS campaign_cycles (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		variant_a_text TEXT NOT NULL,
		variant_b_text TEXT NOT NULL,
		target_per_variant INTEGER NOT NULL,
		sent_a INTEGER NOT NULL DEFAULT 0,
		sent_b INTEGER NOT NULL DEFAULT 0,
		responses_a INTEGER NOT NULL DEFAULT 0,
		responses_b INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		last_send_at TEXT,
		completed_at TEXT,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_campaign_started
		ON campaign_cycles(campaign_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_cycles_status
		ON campaign_cycles(status);

	-- Send records (append-only dispatch log)
	CREATE TABLE IF NOT EXISTS send_records (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		campaign_id TEXT NOT NULL,
		contact_phone TEXT NOT NULL,
		variant TEXT NOT NULL,
		sent_at TEXT NOT NULL,
		message_id TEXT NOT NULL
	);

	-- Daily cap accounting (hot path for the rate limiter)
	CREATE INDEX IF NOT EXISTS idx_sends_campaign_sent_at
		ON send_records(campaign_id, sent_at);
	-- Attribution lookup: latest send to a phone
	CREATE INDEX IF NOT EXISTS idx_sends_phone_sent_at
		ON send_records(contact_phone, sent_at DESC);
	-- One send per contact per cycle
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sends_cycle_phone
		ON send_records(cycle_id, contact_phone);

	-- Inbound events (event_key UNIQUE is the at-least-once dedupe gate)
	CREATE TABLE IF NOT EXISTS response_events (
		id TEXT PRIMARY KEY,
		event_key TEXT NOT NULL UNIQUE,
		send_record_id TEXT NOT NULL DEFAULT '',
		cycle_id TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL,
		body TEXT NOT NULL,
		received_at TEXT NOT NULL,
		is_opt_out BOOLEAN NOT NULL DEFAULT FALSE,
		attributed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_phone
		ON response_events(contact_phone, received_at);
	CREATE INDEX IF NOT EXISTS idx_events_cycle
		ON response_events(cycle_id) WHERE cycle_id != '';
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all rows. Dev/demo only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{"response_events", "send_records", "campaign_cycles", "campaigns", "contacts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// CONTACT STORE (campaign.ContactStore interface)
// =============================================================================

// SaveContact inserts or updates a contact. An existing opt-out always
// survives the upsert.
func (s *Store) SaveContact(ctx context.Context, c campaign.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO contacts (phone, name, opted_out, opted_out_at, last_contacted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			opted_out = contacts.opted_out OR excluded.opted_out,
			opted_out_at = COALESCE(contacts.opted_out_at, excluded.opted_out_at)
	`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		c.Phone, c.Name, c.OptedOut, nullTime(c.OptedOutAt), nullTime(c.LastContactedAt),
		createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

func (s *Store) GetContact(ctx context.Context, phone campaign.PhoneNumber) (*campaign.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, contactColumns+" WHERE phone = ?", phone)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context) ([]campaign.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, contactColumns+" ORDER BY created_at, phone")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// MarkOptedOut sets the opt-out flag, keeping the first opt-out time.
// There is deliberately no statement anywhere that sets opted_out back
// to false.
func (s *Store) MarkOptedOut(ctx context.Context, phone campaign.PhoneNumber, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET opted_out = TRUE,
		    opted_out_at = COALESCE(opted_out_at, ?)
		WHERE phone = ?`,
		at.UTC().Format(time.RFC3339), phone)
	if err != nil {
		return fmt.Errorf("failed to mark opt-out: %w", err)
	}
	return requireRow(res, campaign.ErrContactNotFound)
}

func (s *Store) MarkContacted(ctx context.Context, phone campaign.PhoneNumber, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET last_contacted_at = ? WHERE phone = ?",
		at.UTC().Format(time.RFC3339), phone)
	if err != nil {
		return fmt.Errorf("failed to mark contacted: %w", err)
	}
	return requireRow(res, campaign.ErrContactNotFound)
}

// QueryCandidates returns eligible contacts oldest-first: never opted
// out, never sent to in this cycle, and (unless the campaign allows
// recontacting responders) never attributed a non-opt-out reply.
func (s *Store) QueryCandidates(ctx context.Context, q campaign.CandidateQuery) ([]campaign.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := contactColumns + `
		WHERE opted_out = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM send_records sr
			WHERE sr.cycle_id = ? AND sr.contact_phone = contacts.phone
		  )
		  AND (? OR NOT EXISTS (
			SELECT 1 FROM response_events re
			WHERE re.contact_phone = contacts.phone
			  AND re.attributed = TRUE AND re.is_opt_out = FALSE
		  ))
		ORDER BY created_at, phone
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, q.CycleID, q.IncludeResponders, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// =============================================================================
// CAMPAIGN STORE (campaign.CampaignStore interface)
// =============================================================================

func (s *Store) SaveCampaign(ctx context.Context, c campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO campaigns
		(id, name, timezone, daily_cap, batch_size, target_per_variant,
		 window_start_hour, window_end_hour, attribution_window_secs,
		 paused, recontact_replied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone,
			daily_cap = excluded.daily_cap,
			batch_size = excluded.batch_size,
			target_per_variant = excluded.target_per_variant,
			window_start_hour = excluded.window_start_hour,
			window_end_hour = excluded.window_end_hour,
			attribution_window_secs = excluded.attribution_window_secs,
			paused = excluded.paused,
			recontact_replied = excluded.recontact_replied
	`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Timezone, c.DailyCap, c.BatchSize, c.TargetPerVariant,
		c.WindowStartHour, c.WindowEndHour, int64(c.AttributionWindow.Seconds()),
		c.Paused, c.RecontactReplied, createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id campaign.CampaignID) (*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, campaignColumns+" WHERE id = ?", id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, campaignColumns+" ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) SetPaused(ctx context.Context, id campaign.CampaignID, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE campaigns SET paused = ? WHERE id = ?", paused, id)
	if err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	return requireRow(res, campaign.ErrCampaignNotFound)
}

// =============================================================================
// CYCLE STORE (campaign.CycleStore interface)
// =============================================================================

func (s *Store) CreateCycle(ctx context.Context, c campaign.CampaignCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO campaign_cycles
		(id, campaign_id, variant_a_text, variant_b_text, target_per_variant,
		 sent_a, sent_b, responses_a, responses_b, status, winner,
		 started_at, last_send_at, completed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.CampaignID, c.VariantAText, c.VariantBText, c.TargetPerVariant,
		c.SentA, c.SentB, c.ResponsesA, c.ResponsesB, string(c.Status), string(c.Winner),
		c.StartedAt.UTC().Format(time.RFC3339), nullTime(c.LastSendAt), nullTime(c.CompletedAt),
		c.Version)
	if err != nil {
		return fmt.Errorf("failed to create cycle: %w", err)
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, id campaign.CycleID) (*campaign.CampaignCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, cycleColumns+" WHERE id = ?", id)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ActiveCycle(ctx context.Context, campaignID campaign.CampaignID) (*campaign.CampaignCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		cycleColumns+" WHERE campaign_id = ? ORDER BY started_at DESC, id DESC LIMIT 1", campaignID)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCycles(ctx context.Context, campaignID campaign.CampaignID) ([]campaign.CampaignCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		cycleColumns+" WHERE campaign_id = ? ORDER BY started_at, id", campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.CampaignCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCycle writes status/winner/completed_at through the optimistic
// version check. Counters are NOT written here; they only move through
// the increment statements below.
func (s *Store) UpdateCycle(ctx context.Context, c campaign.CampaignCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE campaign_cycles
		SET status = ?, winner = ?, completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(c.Status), string(c.Winner), nullTime(c.CompletedAt), c.ID, c.Version)
	if err != nil {
		return fmt.Errorf("failed to update cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or stale; distinguish for the caller.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM campaign_cycles WHERE id = ?", c.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return campaign.ErrCycleNotFound
		}
		return campaign.ErrCycleConflict
	}
	return nil
}

// IncrementSent bumps one arm's sent counter inside a single guarded
// UPDATE. The WHERE clause is the last line of defense for the
// "never exceed target" invariant.
func (s *Store) IncrementSent(ctx context.Context, id campaign.CycleID, v campaign.Variant, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := variantColumn(v, "sent_a", "sent_b")
	query := fmt.Sprintf(`
		UPDATE campaign_cycles
		SET %s = %s + 1, last_send_at = ?, version = version + 1
		WHERE id = ? AND %s < target_per_variant`, col, col, col)

	res, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to increment sent count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM campaign_cycles WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return campaign.ErrCycleNotFound
		}
		return campaign.ErrSampleTargetReached
	}
	return nil
}

// IncrementResponse bumps one arm's response counter. Single UPDATE:
// concurrent inbound events serialize at the row, no lost increments.
func (s *Store) IncrementResponse(ctx context.Context, id campaign.CycleID, v campaign.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := variantColumn(v, "responses_a", "responses_b")
	query := fmt.Sprintf(
		"UPDATE campaign_cycles SET %s = %s + 1, version = version + 1 WHERE id = ?", col, col)

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment response count: %w", err)
	}
	return requireRow(res, campaign.ErrCycleNotFound)
}

// =============================================================================
// SEND LOG (campaign.SendLog interface) - append-only
// =============================================================================

func (s *Store) AppendSend(ctx context.Context, r campaign.SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO send_records
		(id, cycle_id, campaign_id, contact_phone, variant, sent_at, message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.CycleID, r.CampaignID, r.ContactPhone, string(r.Variant),
		r.SentAt.UTC().Format(time.RFC3339), r.MessageID)
	if err != nil {
		if isUniqueConstraintError(err) {
			// idx_sends_cycle_phone: one send per contact per cycle.
			return fmt.Errorf("contact %s already sent in cycle %s: %w",
				r.ContactPhone, r.CycleID, err)
		}
		return fmt.Errorf("failed to append send record: %w", err)
	}
	return nil
}

func (s *Store) CountSendsBetween(ctx context.Context, campaignID campaign.CampaignID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM send_records
		WHERE campaign_id = ? AND sent_at >= ? AND sent_at < ?`,
		campaignID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}

func (s *Store) LatestSendTo(ctx context.Context, phone campaign.PhoneNumber, before time.Time) (*campaign.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, sendColumns+`
		WHERE contact_phone = ? AND sent_at <= ?
		ORDER BY sent_at DESC LIMIT 1`,
		phone, before.UTC().Format(time.RFC3339))
	r, err := scanSend(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) ListSends(ctx context.Context, cycleID campaign.CycleID) ([]campaign.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, sendColumns+" WHERE cycle_id = ? ORDER BY sent_at, id", cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.SendRecord
	for rows.Next() {
		r, err := scanSend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// =============================================================================
// EVENT STORE (campaign.EventStore interface)
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, e campaign.ResponseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO response_events
		(id, event_key, send_record_id, cycle_id, contact_phone, body,
		 received_at, is_opt_out, attributed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.EventKey, e.SendRecordID, e.CycleID, e.ContactPhone, e.Body,
		e.ReceivedAt.UTC().Format(time.RFC3339), e.IsOptOut, e.Attributed,
		createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return campaign.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, phone campaign.PhoneNumber) ([]campaign.ResponseEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, eventColumns+" WHERE contact_phone = ? ORDER BY received_at, id", phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.ResponseEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

const contactColumns = `
	SELECT phone, name, opted_out, opted_out_at, last_contacted_at, created_at
	FROM contacts`

func scanContact(row rowScanner) (*campaign.Contact, error) {
	var c campaign.Contact
	var optedOutAt, lastContactedAt sql.NullString
	var createdAt string
	if err := row.Scan(&c.Phone, &c.Name, &c.OptedOut, &optedOutAt, &lastContactedAt, &createdAt); err != nil {
		return nil, err
	}
	c.OptedOutAt = parseNullTime(optedOutAt)
	c.LastContactedAt = parseNullTime(lastContactedAt)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func collectContacts(rows *sql.Rows) ([]campaign.Contact, error) {
	var out []campaign.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const campaignColumns = `
	SELECT id, name, timezone, daily_cap, batch_size, target_per_variant,
	       window_start_hour, window_end_hour, attribution_window_secs,
	       paused, recontact_replied, created_at
	FROM campaigns`

func scanCampaign(row rowScanner) (*campaign.Campaign, error) {
	var c campaign.Campaign
	var windowSecs int64
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Timezone, &c.DailyCap, &c.BatchSize,
		&c.TargetPerVariant, &c.WindowStartHour, &c.WindowEndHour, &windowSecs,
		&c.Paused, &c.RecontactReplied, &createdAt); err != nil {
		return nil, err
	}
	c.AttributionWindow = time.Duration(windowSecs) * time.Second
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

const cycleColumns = `
	SELECT id, campaign_id, variant_a_text, variant_b_text, target_per_variant,
	       sent_a, sent_b, responses_a, responses_b, status, winner,
	       started_at, last_send_at, completed_at, version
	FROM campaign_cycles`

func scanCycle(row rowScanner) (*campaign.CampaignCycle, error) {
	var c campaign.CampaignCycle
	var status, winner, startedAt string
	var lastSendAt, completedAt sql.NullString
	if err := row.Scan(&c.ID, &c.CampaignID, &c.VariantAText, &c.VariantBText,
		&c.TargetPerVariant, &c.SentA, &c.SentB, &c.ResponsesA, &c.ResponsesB,
		&status, &winner, &startedAt, &lastSendAt, &completedAt, &c.Version); err != nil {
		return nil, err
	}
	c.Status = campaign.CycleStatus(status)
	c.Winner = campaign.Variant(winner)
	c.StartedAt = parseTime(startedAt)
	c.LastSendAt = parseNullTime(lastSendAt)
	c.CompletedAt = parseNullTime(completedAt)
	return &c, nil
}

const sendColumns = `
	SELECT id, cycle_id, campaign_id, contact_phone, variant, sent_at, message_id
	FROM send_records`

func scanSend(row rowScanner) (*campaign.SendRecord, error) {
	var r campaign.SendRecord
	var variant, sentAt string
	if err := row.Scan(&r.ID, &r.CycleID, &r.CampaignID, &r.ContactPhone,
		&variant, &sentAt, &r.MessageID); err != nil {
		return nil, err
	}
	r.Variant = campaign.Variant(variant)
	r.SentAt = parseTime(sentAt)
	return &r, nil
}

const eventColumns = `
	SELECT id, event_key, send_record_id, cycle_id, contact_phone, body,
	       received_at, is_opt_out, attributed, created_at
	FROM response_events`

func scanEvent(row rowScanner) (*campaign.ResponseEvent, error) {
	var e campaign.ResponseEvent
	var receivedAt, createdAt string
	if err := row.Scan(&e.ID, &e.EventKey, &e.SendRecordID, &e.CycleID,
		&e.ContactPhone, &e.Body, &receivedAt, &e.IsOptOut, &e.Attributed, &createdAt); err != nil {
		return nil, err
	}
	e.ReceivedAt = parseTime(receivedAt)
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}

// Helper functions

func variantColumn(v campaign.Variant, colA, colB string) string {
	if v == campaign.VariantA {
		return colA
	}
	return colB
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
