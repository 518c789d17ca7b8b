// Package logbook persists missions and their crew events in SQLite.
package logbook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/teslashibe/go-ev3way/pkg/crew"
	"github.com/teslashibe/go-ev3way/pkg/logbook/migrations"
)

var (
	// ErrMissionExists is returned when a mission id is reused.
	ErrMissionExists = errors.New("logbook: mission already exists")
	// ErrUnknownMission is returned for events or updates on a mission
	// that was never started.
	ErrUnknownMission = errors.New("logbook: unknown mission")
)

// Outcomes stored when a mission ends.
const (
	OutcomeLanded  = "landed"
	OutcomeAborted = "aborted"
)

// Mission is one logbook row.
type Mission struct {
	ID        string    `json:"id"`
	Banner    string    `json:"banner"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Outcome   string    `json:"outcome,omitempty"`
}

// Open reports whether the mission has not ended yet.
func (m Mission) Open() bool {
	return m.EndedAt.IsZero()
}

// Event is a stored crew entry.
type Event struct {
	Seq       int64  `json:"seq"`
	MissionID string `json:"mission_id"`
	crew.Entry
}

// Store persists the logbook in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ crew.Recorder = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens a SQLite logbook and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("logbook path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// StartMission opens a new mission row.
func (s *Store) StartMission(ctx context.Context, id, banner string, startedAt time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("mission id is required")
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO missions (id, banner, started_at) VALUES (?, ?, ?)`,
		id, banner, toMillis(startedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE) {
			return fmt.Errorf("%w: %s", ErrMissionExists, id)
		}
		return fmt.Errorf("insert mission: %w", err)
	}
	return nil
}

// EndMission stamps the end time and outcome of a mission.
func (s *Store) EndMission(ctx context.Context, id, outcome string, endedAt time.Time) error {
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE missions SET ended_at = ?, outcome = ? WHERE id = ?`,
		toMillis(endedAt), outcome, id,
	)
	if err != nil {
		return fmt.Errorf("end mission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end mission: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMission, id)
	}
	return nil
}

// Record implements crew.Recorder.
func (s *Store) Record(ctx context.Context, missionID string, e crew.Entry) error {
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO events (mission_id, recorded_at, kind, role, detail) VALUES (?, ?, ?, ?, ?)`,
		missionID, toMillis(at), string(e.Kind), e.Role.String(), e.Detail,
	)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return fmt.Errorf("%w: %s", ErrUnknownMission, missionID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetMission returns one mission.
func (s *Store) GetMission(ctx context.Context, id string) (Mission, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, banner, started_at, ended_at, outcome FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mission{}, fmt.Errorf("%w: %s", ErrUnknownMission, id)
	}
	return m, err
}

// ListMissions returns missions newest first. limit <= 0 means all.
func (s *Store) ListMissions(ctx context.Context, limit int) ([]Mission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, banner, started_at, ended_at, outcome FROM missions
		 ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// ListEvents returns a mission's events in the order they were recorded.
func (s *Store) ListEvents(ctx context.Context, missionID string) ([]Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, mission_id, recorded_at, kind, role, detail FROM events
		 WHERE mission_id = ? ORDER BY seq`, missionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			recordedAt int64
			kind, role string
		)
		if err := rows.Scan(&e.Seq, &e.MissionID, &recordedAt, &kind, &role, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = fromMillis(recordedAt)
		e.Kind = crew.EventKind(kind)
		if err := e.Role.UnmarshalText([]byte(role)); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.Seq, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMission(row scanner) (Mission, error) {
	var (
		m         Mission
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.Banner, &startedAt, &endedAt, &m.Outcome); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Mission{}, err
		}
		return Mission{}, fmt.Errorf("scan mission: %w", err)
	}
	m.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		m.EndedAt = fromMillis(endedAt.Int64)
	}
	return m, nil
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}
