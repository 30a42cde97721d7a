package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/stagecrew/crewdesk/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// maxBatchParams bounds the number of placeholders in one IN clause.
const maxBatchParams = 500

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// every pooled connection to :memory: would be a separate database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection with WAL, foreign keys and a busy timeout.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// withTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = s.RollbackTx(tx)
		return err
	}
	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func dateKey(t time.Time) string {
	return t.Format(engine.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(engine.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

// --- crew ---

const crewColumns = `id, name, level, can_stage, stage_only_if_urgent,
	venue_capabilities, vertical_capabilities, special_notes`

func scanCrew(row rowScanner) (*engine.CrewMember, error) {
	c := &engine.CrewMember{}
	var venues, verticals string
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Level,
		&c.CanStage,
		&c.StageOnlyIfUrgent,
		&venues,
		&verticals,
		&c.SpecialNotes,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(venues), &c.VenueCapabilities); err != nil {
		return nil, fmt.Errorf("invalid venue capabilities for crew %d: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(verticals), &c.VerticalCapabilities); err != nil {
		return nil, fmt.Errorf("invalid vertical capabilities for crew %d: %w", c.ID, err)
	}
	return c, nil
}

func encodeCapabilities(m map[string]engine.Capability) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UpsertCrew inserts a crew member or updates the existing row. Rows are
// matched by id when set, otherwise by name. crew.ID is set on return.
func (s *SQLiteStore) UpsertCrew(ctx context.Context, crew *engine.CrewMember) error {
	if !crew.Level.Valid() {
		return fmt.Errorf("invalid level %q for crew %s", crew.Level, crew.Name)
	}
	venues, err := encodeCapabilities(crew.VenueCapabilities)
	if err != nil {
		return fmt.Errorf("failed to encode venue capabilities: %w", err)
	}
	verticals, err := encodeCapabilities(crew.VerticalCapabilities)
	if err != nil {
		return fmt.Errorf("failed to encode vertical capabilities: %w", err)
	}

	const set = `
		name = excluded.name,
		level = excluded.level,
		can_stage = excluded.can_stage,
		stage_only_if_urgent = excluded.stage_only_if_urgent,
		venue_capabilities = excluded.venue_capabilities,
		vertical_capabilities = excluded.vertical_capabilities,
		special_notes = excluded.special_notes`

	var query string
	args := []any{crew.Name, crew.Level, crew.CanStage, crew.StageOnlyIfUrgent, venues, verticals, crew.SpecialNotes}
	if crew.ID != 0 {
		query = `
			INSERT INTO crew (id, name, level, can_stage, stage_only_if_urgent,
				venue_capabilities, vertical_capabilities, special_notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET` + set + `
			RETURNING id`
		args = append([]any{crew.ID}, args...)
	} else {
		query = `
			INSERT INTO crew (name, level, can_stage, stage_only_if_urgent,
				venue_capabilities, vertical_capabilities, special_notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET` + set + `
			RETURNING id`
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&crew.ID); err != nil {
		return fmt.Errorf("failed to upsert crew %s: %w", crew.Name, err)
	}
	return nil
}

// GetCrew retrieves a crew member by ID
func (s *SQLiteStore) GetCrew(ctx context.Context, id int64) (*engine.CrewMember, error) {
	query := `SELECT ` + crewColumns + ` FROM crew WHERE id = ?`

	c, err := scanCrew(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("crew %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crew: %w", err)
	}
	return c, nil
}

// GetCrewByName retrieves a crew member by exact name
func (s *SQLiteStore) GetCrewByName(ctx context.Context, name string) (*engine.CrewMember, error) {
	query := `SELECT ` + crewColumns + ` FROM crew WHERE name = ?`

	c, err := scanCrew(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("crew %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crew: %w", err)
	}
	return c, nil
}

// ListCrew returns the full roster ordered by id
func (s *SQLiteStore) ListCrew(ctx context.Context) ([]engine.CrewMember, error) {
	query := `SELECT ` + crewColumns + ` FROM crew ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list crew: %w", err)
	}
	defer rows.Close()

	crew := []engine.CrewMember{}
	for rows.Next() {
		c, err := scanCrew(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crew: %w", err)
		}
		crew = append(crew, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating crew: %w", err)
	}
	return crew, nil
}

// DeleteCrew deletes a crew member and, by cascade, their assignments,
// unavailability and ledger rows
func (s *SQLiteStore) DeleteCrew(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM crew WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crew: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("crew %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- events ---

const eventColumns = `id, batch_id, name, date, venue, venue_normalized, vertical,
	stage_crew_needed, event_group, needs_manual_review, manual_flag_reason`

func scanEvent(row rowScanner) (*engine.Event, error) {
	e := &engine.Event{}
	var date string
	var group sql.NullString
	if err := row.Scan(
		&e.ID,
		&e.BatchID,
		&e.Name,
		&date,
		&e.Venue,
		&e.VenueNormalized,
		&e.Vertical,
		&e.StageCrewNeeded,
		&group,
		&e.NeedsManualReview,
		&e.ManualFlagReason,
	); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	e.Date = d
	if group.Valid {
		g := group.String
		e.EventGroup = &g
	}
	return e, nil
}

// InsertEvents stores events and returns their new ids in input order. The
// ID field of each element is set as well.
func (s *SQLiteStore) InsertEvents(ctx context.Context, events []engine.Event) ([]int64, error) {
	ids := make([]int64, 0, len(events))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO events (batch_id, name, date, venue, venue_normalized, vertical,
				stage_crew_needed, event_group, needs_manual_review, manual_flag_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare event insert: %w", err)
		}
		defer stmt.Close()

		for i := range events {
			e := &events[i]
			var group any
			if e.Grouped() {
				group = *e.EventGroup
			}
			result, err := stmt.ExecContext(ctx,
				e.BatchID,
				e.Name,
				dateKey(e.Date),
				e.Venue,
				e.VenueNormalized,
				e.Vertical,
				e.StageCrewNeeded,
				group,
				e.NeedsManualReview,
				e.ManualFlagReason,
			)
			if err != nil {
				return fmt.Errorf("failed to insert event %s on %s: %w", e.Name, dateKey(e.Date), err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get event id: %w", err)
			}
			e.ID = id
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetEvent retrieves an event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id int64) (*engine.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListEventsByBatch returns a batch's events ordered by date, name, id
func (s *SQLiteStore) ListEventsByBatch(ctx context.Context, batchID string) ([]engine.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE batch_id = ? ORDER BY date, name, id`

	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []engine.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// UpdateStageCrewNeeded sets an event's total crew count, FOH seat included
func (s *SQLiteStore) UpdateStageCrewNeeded(ctx context.Context, eventID int64, n int) error {
	if n < 0 {
		return fmt.Errorf("stage crew needed must not be negative, got %d", n)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE events SET stage_crew_needed = ? WHERE id = ?`, n, eventID)
	if err != nil {
		return fmt.Errorf("failed to update stage crew needed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return nil
}

// ListBatches summarizes every stored batch, oldest first
func (s *SQLiteStore) ListBatches(ctx context.Context) ([]BatchSummary, error) {
	query := `
		SELECT batch_id, COUNT(*), MIN(date), MAX(date)
		FROM events
		GROUP BY batch_id
		ORDER BY MIN(date), batch_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []BatchSummary{}
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.BatchID, &b.EventCount, &b.FirstDate, &b.LastDate); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a batch's events and, by cascade, their assignments.
// The workload ledger is left untouched.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, batchID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE batch_id = ?`, batchID)
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return nil
}

// --- unavailability ---

func scanUnavailability(row rowScanner) (engine.Unavailability, error) {
	var u engine.Unavailability
	var date string
	if err := row.Scan(&u.CrewID, &date, &u.Reason); err != nil {
		return u, err
	}
	d, err := parseDate(date)
	if err != nil {
		return u, err
	}
	u.Date = d
	return u, nil
}

func (s *SQLiteStore) queryUnavailability(ctx context.Context, query string, args ...any) ([]engine.Unavailability, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unavailability: %w", err)
	}
	defer rows.Close()

	out := []engine.Unavailability{}
	for rows.Next() {
		u, err := scanUnavailability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unavailability: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unavailability: %w", err)
	}
	return out, nil
}

// AddUnavailability records unavailability, replacing the reason of existing
// (crew, date) rows
func (s *SQLiteStore) AddUnavailability(ctx context.Context, records []engine.Unavailability) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO crew_unavailability (crew_id, date, reason)
			VALUES (?, ?, ?)
			ON CONFLICT(crew_id, date) DO UPDATE SET reason = excluded.reason
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare unavailability insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.CrewID, dateKey(r.Date), r.Reason); err != nil {
				return fmt.Errorf("failed to add unavailability for crew %d on %s: %w", r.CrewID, dateKey(r.Date), err)
			}
		}
		return nil
	})
}

// RemoveUnavailability deletes a crew member's unavailability on dates and
// returns the number of rows removed
func (s *SQLiteStore) RemoveUnavailability(ctx context.Context, crewID int64, dates []time.Time) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range dates {
			result, err := tx.ExecContext(ctx,
				`DELETE FROM crew_unavailability WHERE crew_id = ? AND date = ?`, crewID, dateKey(d))
			if err != nil {
				return fmt.Errorf("failed to remove unavailability: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			removed += n
		}
		return nil
	})
	return removed, err
}

// ListUnavailability returns records dated within [from, to]
func (s *SQLiteStore) ListUnavailability(ctx context.Context, from, to time.Time) ([]engine.Unavailability, error) {
	return s.queryUnavailability(ctx, `
		SELECT crew_id, date, reason
		FROM crew_unavailability
		WHERE date BETWEEN ? AND ?
		ORDER BY date, crew_id
	`, dateKey(from), dateKey(to))
}

// ListUnavailabilityByMonth returns records for a YYYY-MM month
func (s *SQLiteStore) ListUnavailabilityByMonth(ctx context.Context, month string) ([]engine.Unavailability, error) {
	return s.queryUnavailability(ctx, `
		SELECT crew_id, date, reason
		FROM crew_unavailability
		WHERE substr(date, 1, 7) = ?
		ORDER BY date, crew_id
	`, month)
}

// --- assignments ---

// DeleteAssignmentsForEvents removes every assignment row for the events
func (s *SQLiteStore) DeleteAssignmentsForEvents(ctx context.Context, eventIDs []int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(eventIDs); start += maxBatchParams {
			end := min(start+maxBatchParams, len(eventIDs))
			chunk := eventIDs[start:end]

			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			query := `DELETE FROM assignments WHERE event_id IN (` + placeholders(len(chunk)) + `)`
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to delete assignments: %w", err)
			}
		}
		return nil
	})
}

func insertAssignments(ctx context.Context, tx *sql.Tx, rows []engine.Assignment) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assignments (event_id, crew_id, role, was_manually_overridden)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EventID, r.CrewID, r.Role, r.WasManuallyOverridden); err != nil {
			return fmt.Errorf("failed to insert assignment (event %d, crew %d): %w", r.EventID, r.CrewID, err)
		}
	}
	return nil
}

// InsertAssignments stores assignment rows
func (s *SQLiteStore) InsertAssignments(ctx context.Context, rows []engine.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertAssignments(ctx, tx, rows)
	})
}

// ReplaceEventAssignments deletes an event's rows and inserts rows in one transaction
func (s *SQLiteStore) ReplaceEventAssignments(ctx context.Context, eventID int64, rows []engine.Assignment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE event_id = ?`, eventID); err != nil {
			return fmt.Errorf("failed to delete assignments: %w", err)
		}
		return insertAssignments(ctx, tx, rows)
	})
}

// ListAssignmentsByBatch returns the batch's assignments joined with event
// and crew details, FOH first within each event
func (s *SQLiteStore) ListAssignmentsByBatch(ctx context.Context, batchID string) ([]AssignmentView, error) {
	query := `
		SELECT e.id, e.name, e.date, e.venue, e.vertical, e.event_group,
			   c.id, c.name, c.level, a.role, a.was_manually_overridden
		FROM assignments a
		JOIN events e ON e.id = a.event_id
		JOIN crew c ON c.id = a.crew_id
		WHERE e.batch_id = ?
		ORDER BY e.date, e.name, e.id, CASE a.role WHEN 'FOH' THEN 0 ELSE 1 END, c.id
	`

	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	views := []AssignmentView{}
	for rows.Next() {
		var v AssignmentView
		var group sql.NullString
		if err := rows.Scan(
			&v.EventID,
			&v.EventName,
			&v.Date,
			&v.Venue,
			&v.Vertical,
			&group,
			&v.CrewID,
			&v.CrewName,
			&v.Level,
			&v.Role,
			&v.WasManuallyOverridden,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if group.Valid {
			g := group.String
			v.EventGroup = &g
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return views, nil
}

// --- workload ledger ---

// ListWorkload returns ledger rows for the given months
func (s *SQLiteStore) ListWorkload(ctx context.Context, months []string) ([]engine.WorkloadHistory, error) {
	if len(months) == 0 {
		return []engine.WorkloadHistory{}, nil
	}

	args := make([]any, len(months))
	for i, m := range months {
		args[i] = m
	}
	query := `
		SELECT crew_id, month, assignment_count
		FROM workload_history
		WHERE month IN (` + placeholders(len(months)) + `)
		ORDER BY month, crew_id
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workload: %w", err)
	}
	defer rows.Close()

	history := []engine.WorkloadHistory{}
	for rows.Next() {
		var h engine.WorkloadHistory
		if err := rows.Scan(&h.CrewID, &h.Month, &h.AssignmentCount); err != nil {
			return nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workload: %w", err)
	}
	return history, nil
}

// ListBatchDeltas returns the ledger contribution recorded for batchID by its
// last batch-replace merge
func (s *SQLiteStore) ListBatchDeltas(ctx context.Context, batchID string) ([]engine.WorkloadHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crew_id, month, delta
		FROM workload_batch_deltas
		WHERE batch_id = ?
		ORDER BY month, crew_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch deltas: %w", err)
	}
	defer rows.Close()

	deltas := []engine.WorkloadHistory{}
	for rows.Next() {
		var h engine.WorkloadHistory
		if err := rows.Scan(&h.CrewID, &h.Month, &h.AssignmentCount); err != nil {
			return nil, fmt.Errorf("failed to scan batch delta: %w", err)
		}
		deltas = append(deltas, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch deltas: %w", err)
	}
	return deltas, nil
}

// ListWorkloadByMonth returns every crew member's ledger value for month,
// zero when no row exists
func (s *SQLiteStore) ListWorkloadByMonth(ctx context.Context, month string) ([]WorkloadRow, error) {
	query := `
		SELECT c.id, c.name, c.level, COALESCE(w.assignment_count, 0)
		FROM crew c
		LEFT JOIN workload_history w ON w.crew_id = c.id AND w.month = ?
		ORDER BY c.id
	`

	rows, err := s.db.QueryContext(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list workload: %w", err)
	}
	defer rows.Close()

	out := []WorkloadRow{}
	for rows.Next() {
		r := WorkloadRow{Month: month}
		if err := rows.Scan(&r.CrewID, &r.Name, &r.Level, &r.AssignmentCount); err != nil {
			return nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workload: %w", err)
	}
	return out, nil
}

// MergeWorkload writes a run's ledger deltas according to merge.Mode in one
// transaction.
func (s *SQLiteStore) MergeWorkload(ctx context.Context, merge engine.WorkloadMerge) error {
	if !merge.Mode.Valid() {
		return fmt.Errorf("invalid merge mode %q", merge.Mode)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		switch merge.Mode {
		case engine.MergeOverwrite:
			return upsertWorkload(ctx, tx, merge.Month, merge.Totals, false)
		case engine.MergeBatchReplace:
			if err := reverseBatchDeltas(ctx, tx, merge.BatchID); err != nil {
				return err
			}
			if err := upsertWorkload(ctx, tx, merge.Month, merge.Deltas, true); err != nil {
				return err
			}
			return recordBatchDeltas(ctx, tx, merge.BatchID, merge.Month, merge.Deltas)
		default:
			return upsertWorkload(ctx, tx, merge.Month, merge.Deltas, true)
		}
	})
}

func upsertWorkload(ctx context.Context, tx *sql.Tx, month string, values map[int64]int, add bool) error {
	query := `
		INSERT INTO workload_history (crew_id, month, assignment_count)
		VALUES (?, ?, ?)
		ON CONFLICT(crew_id, month) DO UPDATE SET
			assignment_count = excluded.assignment_count,
			updated_at = CURRENT_TIMESTAMP
	`
	if add {
		query = `
			INSERT INTO workload_history (crew_id, month, assignment_count)
			VALUES (?, ?, ?)
			ON CONFLICT(crew_id, month) DO UPDATE SET
				assignment_count = assignment_count + excluded.assignment_count,
				updated_at = CURRENT_TIMESTAMP
		`
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare workload upsert: %w", err)
	}
	defer stmt.Close()

	for crewID, n := range values {
		if _, err := stmt.ExecContext(ctx, crewID, month, n); err != nil {
			return fmt.Errorf("failed to merge workload for crew %d: %w", crewID, err)
		}
	}
	return nil
}

// reverseBatchDeltas subtracts what batchID contributed on its previous run.
func reverseBatchDeltas(ctx context.Context, tx *sql.Tx, batchID string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE workload_history
		SET assignment_count = MAX(0, assignment_count - (
				SELECT d.delta FROM workload_batch_deltas d
				WHERE d.batch_id = ? AND d.crew_id = workload_history.crew_id AND d.month = workload_history.month
			)),
			updated_at = CURRENT_TIMESTAMP
		WHERE EXISTS (
			SELECT 1 FROM workload_batch_deltas d
			WHERE d.batch_id = ? AND d.crew_id = workload_history.crew_id AND d.month = workload_history.month
		)
	`, batchID, batchID); err != nil {
		return fmt.Errorf("failed to reverse previous batch deltas: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workload_batch_deltas WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("failed to clear batch deltas: %w", err)
	}
	return nil
}

func recordBatchDeltas(ctx context.Context, tx *sql.Tx, batchID, month string, deltas map[int64]int) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO workload_batch_deltas (batch_id, crew_id, month, delta)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch delta insert: %w", err)
	}
	defer stmt.Close()

	for crewID, n := range deltas {
		if _, err := stmt.ExecContext(ctx, batchID, crewID, month, n); err != nil {
			return fmt.Errorf("failed to record batch delta for crew %d: %w", crewID, err)
		}
	}
	return nil
}

// --- runs ---

const runColumns = `id, batch_id, status, month, event_count, conflict_count,
	started_at, completed_at, error, metadata, created_at, updated_at`

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.BatchID,
		&run.Status,
		&run.Month,
		&run.EventCount,
		&run.ConflictCount,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	return run, err
}

// CreateRun creates a new run record. A missing ID is generated.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Metadata == "" {
		run.Metadata = "{}"
	}
	run.CreatedAt, run.UpdatedAt = now, now

	query := `
		INSERT INTO runs (id, batch_id, status, month, event_count, conflict_count,
			started_at, completed_at, error, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.BatchID,
		run.Status,
		run.Month,
		run.EventCount,
		run.ConflictCount,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Metadata,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// FinishRun records a run's outcome
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, outcome RunOutcome) error {
	metadata := outcome.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	query := `
		UPDATE runs
		SET status = ?, month = ?, event_count = ?, conflict_count = ?,
			error = ?, metadata = ?, completed_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		outcome.Status,
		outcome.Month,
		outcome.EventCount,
		outcome.ConflictCount,
		outcome.Error,
		metadata,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns lists the most recent runs, optionally for one batch
func (s *SQLiteStore) ListRuns(ctx context.Context, batchID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// --- batch locks ---

// AcquireBatchLock takes the per-batch run lock for owner. It fails with
// ErrBatchLocked when the lock is already held.
func (s *SQLiteStore) AcquireBatchLock(ctx context.Context, batchID, owner string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_locks (batch_id, owner, acquired_at)
		VALUES (?, ?, ?)
		ON CONFLICT(batch_id) DO NOTHING
	`, batchID, owner, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to acquire batch lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		holder := "unknown"
		if lock, err := s.GetBatchLock(ctx, batchID); err == nil {
			holder = lock.Owner
		}
		return fmt.Errorf("%w: %s held by %s", ErrBatchLocked, batchID, holder)
	}
	return nil
}

// ReleaseBatchLock releases a lock held by owner
func (s *SQLiteStore) ReleaseBatchLock(ctx context.Context, batchID, owner string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM batch_locks WHERE batch_id = ? AND owner = ?`, batchID, owner)
	if err != nil {
		return fmt.Errorf("failed to release batch lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("lock on %s for %s: %w", batchID, owner, ErrNotFound)
	}
	return nil
}

// GetBatchLock returns the current holder of a batch lock
func (s *SQLiteStore) GetBatchLock(ctx context.Context, batchID string) (*BatchLock, error) {
	lock := &BatchLock{}
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id, owner, acquired_at FROM batch_locks WHERE batch_id = ?`, batchID,
	).Scan(&lock.BatchID, &lock.Owner, &lock.AcquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock on %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch lock: %w", err)
	}
	return lock, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
