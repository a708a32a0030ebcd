// Package storage provides SQLite-backed persistence for historical price observations.
// Simulation output is never stored.
package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/mcforecast/internal/models"
)

// Storage wraps a SQLite database of price observations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/mcforecast/prices.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "mcforecast", "prices.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			name        TEXT PRIMARY KEY,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			entity      TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
			date        INTEGER NOT NULL,
			value       REAL NOT NULL,
			PRIMARY KEY (entity, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddObservations upserts observations in one transaction. Dates are stored at day
// precision in UTC.
func (s *Storage) AddObservations(ctx context.Context, observations []models.Observation) error {
	for i := range observations {
		if err := observations[i].Validate(); err != nil {
			return fmt.Errorf("invalid observation %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	entityStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO entities (name, created_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer entityStmt.Close()

	obsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (entity, date, value) VALUES (?, ?, ?)
		ON CONFLICT (entity, date) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer obsStmt.Close()

	now := time.Now().UnixNano()
	for _, obs := range observations {
		if _, err := entityStmt.ExecContext(ctx, obs.Entity, now); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", obs.Entity, err)
		}
		if _, err := obsStmt.ExecContext(ctx, obs.Entity, dayKey(obs.Date), obs.Value); err != nil {
			return fmt.Errorf("failed to insert observation for %s: %w", obs.Entity, err)
		}
	}

	return tx.Commit()
}

// ImportCSV reads "date,entity,value" rows (with that header, in any column order) and
// stores them. It returns the number of imported observations.
func (s *Storage) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := map[string]int{"date": -1, "entity": -1, "value": -1}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := cols[key]; ok {
			cols[key] = i
		}
	}
	for name, idx := range cols {
		if idx < 0 {
			return 0, fmt.Errorf("CSV header is missing column %q", name)
		}
	}

	var observations []models.Observation
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		date, err := time.Parse(models.DateLayout, strings.TrimSpace(record[cols["date"]]))
		if err != nil {
			return 0, fmt.Errorf("invalid date on CSV line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[cols["value"]]), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value on CSV line %d: %w", line, err)
		}
		observations = append(observations, models.Observation{
			Entity: strings.TrimSpace(record[cols["entity"]]),
			Date:   date,
			Value:  value,
		})
	}

	if len(observations) == 0 {
		return 0, errors.New("CSV contains no observations")
	}
	if err := s.AddObservations(ctx, observations); err != nil {
		return 0, err
	}
	return len(observations), nil
}

// Range bounds a query by date, inclusive. Zero values leave that side open.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) bounds() (int64, int64) {
	lo, hi := int64(-1<<62), int64(1<<62)
	if !r.Start.IsZero() {
		lo = dayKey(r.Start)
	}
	if !r.End.IsZero() {
		hi = dayKey(r.End)
	}
	return lo, hi
}

// Entities returns every stored entity name in alphabetical order.
func (s *Storage) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Observations returns the observations of the given entities within r, ordered by
// entity position in the argument and then by date.
func (s *Storage) Observations(ctx context.Context, entities []string, r Range) ([]models.Observation, error) {
	lo, hi := r.bounds()
	var out []models.Observation
	for _, entity := range entities {
		exists, err := s.hasEntity(ctx, entity)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("entity not found: %s", entity)
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT date, value FROM observations
			WHERE entity = ? AND date BETWEEN ? AND ?
			ORDER BY date`, entity, lo, hi)
		if err != nil {
			return nil, fmt.Errorf("failed to query observations: %w", err)
		}
		for rows.Next() {
			var day int64
			obs := models.Observation{Entity: entity}
			if err := rows.Scan(&day, &obs.Value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan observation: %w", err)
			}
			obs.Date = fromDayKey(day)
			out = append(out, obs)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadTable loads the given entities within r and aligns them into a PriceTable.
func (s *Storage) LoadTable(ctx context.Context, entities []string, r Range, opts models.BuildOptions) (models.PriceTable, error) {
	if len(entities) == 0 {
		return models.PriceTable{}, errors.New("no entities requested")
	}
	observations, err := s.Observations(ctx, entities, r)
	if err != nil {
		return models.PriceTable{}, err
	}
	if len(observations) == 0 {
		return models.PriceTable{}, errors.New("no observations in the requested range")
	}
	table, err := models.BuildPriceTable(observations, opts)
	if err != nil {
		return models.PriceTable{}, fmt.Errorf("failed to align price table: %w", err)
	}
	return table, nil
}

// EntityMean is an entity's average price over a range.
type EntityMean struct {
	Entity       string
	Mean         float64
	Observations int
}

// RankByMeanValue returns every entity with observations in r, ordered by ascending mean
// value (ties by name).
func (s *Storage) RankByMeanValue(ctx context.Context, r Range) ([]EntityMean, error) {
	lo, hi := r.bounds()
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, AVG(value), COUNT(*) FROM observations
		WHERE date BETWEEN ? AND ?
		GROUP BY entity
		ORDER BY AVG(value), entity`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to rank entities: %w", err)
	}
	defer rows.Close()
	ranked := []EntityMean{}
	for rows.Next() {
		var m EntityMean
		if err := rows.Scan(&m.Entity, &m.Mean, &m.Observations); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		ranked = append(ranked, m)
	}
	return ranked, rows.Err()
}

// MostExpensive returns the n entities with the highest mean value, most expensive first.
func (s *Storage) MostExpensive(ctx context.Context, r Range, n int) ([]string, error) {
	ranked, err := s.RankByMeanValue(ctx, r)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for i := len(ranked) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ranked[i].Entity)
	}
	return out, nil
}

// LeastExpensive returns the n entities with the lowest mean value, cheapest first.
func (s *Storage) LeastExpensive(ctx context.Context, r Range, n int) ([]string, error) {
	ranked, err := s.RankByMeanValue(ctx, r)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for i := 0; i < len(ranked) && len(out) < n; i++ {
		out = append(out, ranked[i].Entity)
	}
	return out, nil
}

// DeleteEntity removes an entity and, by cascade, its observations.
func (s *Storage) DeleteEntity(ctx context.Context, entity string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE name = ?`, entity)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entity not found: %s", entity)
	}
	return nil
}

func (s *Storage) hasEntity(ctx context.Context, entity string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE name = ?`, entity).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up entity: %w", err)
	}
	return true, nil
}

// dayKey stores a date as days since the Unix epoch.
func dayKey(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func fromDayKey(k int64) time.Time {
	return time.Unix(k*86400, 0).UTC()
}
