package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/repo"
)

var _ repo.ServiceStore = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS services (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	uri              TEXT NOT NULL UNIQUE,
	monitor_interval INTEGER NOT NULL CHECK (monitor_interval > 0),
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS thresholds (
	id          TEXT PRIMARY KEY,
	service_id  TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
	lower_limit INTEGER NOT NULL,
	upper_limit INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thresholds_service ON thresholds (service_id);
`

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database file and applies the schema.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// dsn applies pragmas on every new connection, so they survive reconnects.
func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) LoadAllTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, uri, monitor_interval FROM services`)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.ID, &t.URI, &t.IntervalMS); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, uri, monitor_interval, created_at, updated_at
		   FROM services ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	var out []domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, svc)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byService, err := thresholds(ctx, s.db, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Thresholds = byService[out[i].ID]
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Service, error) {
	return get(ctx, s.db, id)
}

func (s *Store) Create(ctx context.Context, svc *domain.Service) error {
	repo.Prepare(svc)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO services (id, name, uri, monitor_interval, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(svc.ID), svc.Name, svc.URI, svc.MonitorInterval,
			formatTime(svc.CreatedAt), formatTime(svc.UpdatedAt),
		)
		if err != nil {
			return mapErr("insert service", err)
		}
		return insertThresholds(ctx, tx, svc.ID, svc.Thresholds)
	})
}

func (s *Store) Update(ctx context.Context, id domain.TargetID, p domain.ServicePatch) (*domain.Service, error) {
	var out *domain.Service
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE services
			    SET name = COALESCE(?, name),
			        uri = COALESCE(?, uri),
			        monitor_interval = COALESCE(?, monitor_interval),
			        updated_at = ?
			  WHERE id = ?`,
			nullable(p.Name), nullable(p.URI), nullable(p.MonitorInterval),
			formatTime(time.Now().UTC()), string(id),
		)
		if err != nil {
			return mapErr("update service", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repo.ErrNotFound
		}
		if p.Thresholds != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM thresholds WHERE service_id = ?`, string(id)); err != nil {
				return fmt.Errorf("clear thresholds: %w", err)
			}
			if err := insertThresholds(ctx, tx, id, repo.WithIDs(p.Thresholds)); err != nil {
				return err
			}
		}
		out, err = get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, id domain.TargetID) (*domain.Service, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, uri, monitor_interval, created_at, updated_at
		   FROM services WHERE id = ?`, string(id))
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	byService, err := thresholds(ctx, q, id)
	if err != nil {
		return nil, err
	}
	svc.Thresholds = byService[id]
	return &svc, nil
}

func thresholds(ctx context.Context, q querier, id domain.TargetID) (map[domain.TargetID][]domain.Threshold, error) {
	query := `SELECT id, service_id, lower_limit, upper_limit FROM thresholds`
	var args []any
	if id != "" {
		query += ` WHERE service_id = ?`
		args = append(args, string(id))
	}
	query += ` ORDER BY service_id, lower_limit, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.TargetID][]domain.Threshold)
	for rows.Next() {
		var (
			th        domain.Threshold
			serviceID domain.TargetID
		)
		if err := rows.Scan(&th.ID, &serviceID, &th.LowerLimit, &th.UpperLimit); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		out[serviceID] = append(out[serviceID], th)
	}
	return out, rows.Err()
}

func insertThresholds(ctx context.Context, tx *sql.Tx, id domain.TargetID, ts []domain.Threshold) error {
	for _, th := range ts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO thresholds (id, service_id, lower_limit, upper_limit) VALUES (?, ?, ?, ?)`,
			th.ID, string(id), th.LowerLimit, th.UpperLimit,
		)
		if err != nil {
			return fmt.Errorf("insert threshold: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(sc scanner) (domain.Service, error) {
	var (
		svc                  domain.Service
		createdAt, updatedAt string
	)
	if err := sc.Scan(&svc.ID, &svc.Name, &svc.URI, &svc.MonitorInterval, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return svc, err
		}
		return svc, fmt.Errorf("scan service: %w", err)
	}
	svc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	svc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return svc, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func mapErr(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || strings.Contains(se.Error(), "UNIQUE constraint failed") {
			return repo.ErrConflict
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
