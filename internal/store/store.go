// Package store persists classified samples in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

// ErrNotFound is returned when no row has the requested id.
var ErrNotFound = errors.New("record not found")

const columns = `id, road_state, rain_state, user_id, x, y, z, latitude, longitude, rain_intensity, temperature, timestamp`

// Store is an append-mostly table of flattened samples. It is safe for
// concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// dsn adds a busy timeout and WAL journaling so concurrent writers wait for
// the lock instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness reports whether the database answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}

// Insert appends p and returns the stored row with its assigned id.
func (s *Store) Insert(ctx context.Context, p domain.ProcessedAgentData) (domain.StoredRecord, error) {
	rec := domain.Flatten(p)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_agent_data
			(road_state, rain_state, user_id, x, y, z, latitude, longitude, rain_intensity, temperature, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RoadState, rec.RainState, rec.UserID, rec.X, rec.Y, rec.Z,
		rec.Latitude, rec.Longitude, rec.RainIntensity, rec.Temperature, rec.Timestamp.String(),
	)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("insert record: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// Get returns the row with the given id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (domain.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM processed_agent_data WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// List returns every row ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM processed_agent_data ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := []domain.StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Update overwrites the mutable columns of row id (road and rain state,
// timestamp, temperature and rain intensity) and returns the updated row.
func (s *Store) Update(ctx context.Context, id int64, p domain.ProcessedAgentData) (domain.StoredRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processed_agent_data
		SET road_state = ?, rain_state = ?, timestamp = ?, temperature = ?, rain_intensity = ?
		WHERE id = ?`,
		p.RoadState, p.RainState, p.AgentData.Timestamp.String(), p.AgentData.Temperature, p.AgentData.Rain.Intensity, id,
	)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("update record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("update record %d: %w", id, err)
	}
	if n == 0 {
		return domain.StoredRecord{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes row id and returns what it held.
func (s *Store) Delete(ctx context.Context, id int64) (domain.StoredRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_agent_data WHERE id = ?`, id)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("delete record %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.StoredRecord{}, ErrNotFound
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (domain.StoredRecord, error) {
	var (
		rec domain.StoredRecord
		ts  string
	)
	err := sc.Scan(&rec.ID, &rec.RoadState, &rec.RainState, &rec.UserID, &rec.X, &rec.Y, &rec.Z,
		&rec.Latitude, &rec.Longitude, &rec.RainIntensity, &rec.Temperature, &ts)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	if err := rec.Timestamp.UnmarshalText([]byte(ts)); err != nil {
		return domain.StoredRecord{}, fmt.Errorf("decode timestamp of record %d: %w", rec.ID, err)
	}
	return rec, nil
}
