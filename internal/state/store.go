package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/infrastructure/database"
)

// ErrStateNotFound is returned by Get when a device has no state row.
var ErrStateNotFound = errors.New("state: not found")

// History source values.
const (
	SourceCommand = "command"
	SourceSeed    = "seed"
	SourceAPI     = "api"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timeLayout is fixed-width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	ID        int64         `json:"id"`
	DeviceID  string        `json:"device_id"`
	State     climate.State `json:"state"`
	Source    string        `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is the SQLite-backed state store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store over an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get returns the current state of a device.
//
// Returns ErrStateNotFound (wrapped) when the device has no row.
func (s *Store) Get(ctx context.Context, deviceID string) (climate.State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT power, mode, fan_speed, temperature, last_updated
		 FROM ac_states WHERE device_id = ?`,
		deviceID,
	)

	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return climate.State{}, fmt.Errorf("%w: %s", ErrStateNotFound, deviceID)
	}
	if err != nil {
		return climate.State{}, fmt.Errorf("querying state: %w", err)
	}
	return st, nil
}

type sourceKey struct{}

// WithSource tags ctx with the history source Put records. The API sets
// SourceAPI; untagged contexts record SourceCommand.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source set by WithSource, or SourceCommand.
func SourceFrom(ctx context.Context) string {
	if src, ok := ctx.Value(sourceKey{}).(string); ok && src != "" {
		return src
	}
	return SourceCommand
}

// Put stores st as the device's state. The history entry takes its source
// from ctx (see WithSource).
func (s *Store) Put(ctx context.Context, deviceID string, st climate.State) error {
	return s.PutWithSource(ctx, deviceID, st, SourceFrom(ctx))
}

// PutWithSource upserts the state row and appends a history entry in one
// transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - st: State to store; a zero LastUpdated is set to now
//   - source: Origin of the change (command, seed, api)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) PutWithSource(ctx context.Context, deviceID string, st climate.State, source string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if st.LastUpdated.IsZero() {
		st.LastUpdated = s.now()
	}

	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ac_states (device_id, power, mode, fan_speed, temperature, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(device_id) DO UPDATE SET
			   power = excluded.power,
			   mode = excluded.mode,
			   fan_speed = excluded.fan_speed,
			   temperature = excluded.temperature,
			   last_updated = excluded.last_updated`,
			deviceID, st.Power, string(st.Mode), string(st.FanSpeed), st.Temperature, formatTime(st.LastUpdated),
		)
		if err != nil {
			return fmt.Errorf("upserting state: %w", err)
		}
		return s.recordHistory(ctx, tx, deviceID, st, source)
	})
}

// Seed stores st only if the device has no state yet.
//
// Returns true when a row was inserted.
func (s *Store) Seed(ctx context.Context, deviceID string, st climate.State) (bool, error) {
	if st.LastUpdated.IsZero() {
		st.LastUpdated = s.now()
	}

	var inserted bool
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO ac_states (device_id, power, mode, fan_speed, temperature, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(device_id) DO NOTHING`,
			deviceID, st.Power, string(st.Mode), string(st.FanSpeed), st.Temperature, formatTime(st.LastUpdated),
		)
		if err != nil {
			return fmt.Errorf("seeding state: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true
		return s.recordHistory(ctx, tx, deviceID, st, SourceSeed)
	})
	return inserted, err
}

// List returns the state of every stored device keyed by ID.
func (s *Store) List(ctx context.Context) (map[string]climate.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT device_id, power, mode, fan_speed, temperature, last_updated
		 FROM ac_states ORDER BY device_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]climate.State)
	for rows.Next() {
		var id string
		var st climate.State
		var mode, fan, updated string
		if err := rows.Scan(&id, &st.Power, &mode, &fan, &st.Temperature, &updated); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		st.Mode, st.FanSpeed = climate.Mode(mode), climate.FanSpeed(fan)
		if st.LastUpdated, err = parseTime(updated); err != nil {
			return nil, err
		}
		states[id] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating states: %w", err)
	}
	return states, nil
}

// GetHistory returns recent history for a device, newest first.
//
// limit defaults to 50 and is capped at 200.
func (s *Store) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var stateJSON, createdAt string
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes history entries older than olderThan.
//
// Returns the number of rows deleted.
func (s *Store) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(s.now().Add(-olderThan))
	result, err := s.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) recordHistory(ctx context.Context, tx *sql.Tx, deviceID string, st climate.State, source string) error {
	if source == "" {
		source = SourceCommand
	}
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID, string(stateJSON), source, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

func scanState(row *sql.Row) (climate.State, error) {
	var st climate.State
	var mode, fan, updated string
	if err := row.Scan(&st.Power, &mode, &fan, &st.Temperature, &updated); err != nil {
		return climate.State{}, err
	}
	st.Mode, st.FanSpeed = climate.Mode(mode), climate.FanSpeed(fan)

	t, err := parseTime(updated)
	if err != nil {
		return climate.State{}, err
	}
	st.LastUpdated = t
	return st, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	t, err := time.Parse(timeLayout, value)
	if err == nil {
		return t, nil
	}
	if fallback, fallbackErr := time.Parse(time.RFC3339, value); fallbackErr == nil {
		return fallback.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
}
