package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/livemonitor/internal/domain"
	"github.com/hamed0406/livemonitor/internal/repo"
)

var _ repo.ServiceStore = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS services (
  id               TEXT PRIMARY KEY,
  name             VARCHAR(2048) NOT NULL,
  uri              VARCHAR(2048) NOT NULL UNIQUE,
  monitor_interval BIGINT NOT NULL CHECK (monitor_interval > 0),
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS thresholds (
  id          TEXT PRIMARY KEY,
  service_id  TEXT NOT NULL REFERENCES services(id) ON DELETE CASCADE,
  lower_limit BIGINT NOT NULL,
  upper_limit BIGINT NOT NULL,
  CHECK (lower_limit < upper_limit)
);

CREATE INDEX IF NOT EXISTS idx_thresholds_service ON thresholds (service_id);
`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ---- targets ----

func (s *Store) LoadAllTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, uri, monitor_interval FROM services`)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var (
			id       string
			uri      string
			interval int64
		)
		if err := rows.Scan(&id, &uri, &interval); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, domain.Target{ID: domain.TargetID(id), URI: uri, IntervalMS: interval})
	}
	return out, rows.Err()
}

// ---- services ----

func (s *Store) List(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, uri, monitor_interval, created_at, updated_at
		   FROM services
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanService)
	if err != nil {
		return nil, fmt.Errorf("scan services: %w", err)
	}

	byService, err := s.thresholds(ctx, s.pool, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Thresholds = byService[out[i].ID]
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Service, error) {
	return s.get(ctx, s.pool, id)
}

func (s *Store) Create(ctx context.Context, svc *domain.Service) error {
	repo.Prepare(svc)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO services (id, name, uri, monitor_interval, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			string(svc.ID), svc.Name, svc.URI, svc.MonitorInterval, svc.CreatedAt, svc.UpdatedAt,
		)
		if err != nil {
			return mapErr("insert service", err)
		}
		return insertThresholds(ctx, tx, svc.ID, svc.Thresholds)
	})
}

func (s *Store) Update(ctx context.Context, id domain.TargetID, p domain.ServicePatch) (*domain.Service, error) {
	var out *domain.Service
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE services
			    SET name = COALESCE($2, name),
			        uri = COALESCE($3, uri),
			        monitor_interval = COALESCE($4, monitor_interval),
			        updated_at = now()
			  WHERE id = $1`,
			string(id), p.Name, p.URI, p.MonitorInterval,
		)
		if err != nil {
			return mapErr("update service", err)
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		if p.Thresholds != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM thresholds WHERE service_id = $1`, string(id)); err != nil {
				return fmt.Errorf("clear thresholds: %w", err)
			}
			if err := insertThresholds(ctx, tx, id, repo.WithIDs(p.Thresholds)); err != nil {
				return err
			}
		}
		out, err = s.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) get(ctx context.Context, q querier, id domain.TargetID) (*domain.Service, error) {
	rows, err := q.Query(ctx,
		`SELECT id, name, uri, monitor_interval, created_at, updated_at
		   FROM services WHERE id = $1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	svc, err := pgx.CollectOneRow(rows, scanService)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan service: %w", err)
	}
	byService, err := s.thresholds(ctx, q, id)
	if err != nil {
		return nil, err
	}
	svc.Thresholds = byService[id]
	return &svc, nil
}

// thresholds loads thresholds grouped by service, for one service when id is set.
func (s *Store) thresholds(ctx context.Context, q querier, id domain.TargetID) (map[domain.TargetID][]domain.Threshold, error) {
	sql := `SELECT id, service_id, lower_limit, upper_limit FROM thresholds`
	var args []any
	if id != "" {
		sql += ` WHERE service_id = $1`
		args = append(args, string(id))
	}
	sql += ` ORDER BY service_id, lower_limit, id`

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.TargetID][]domain.Threshold)
	for rows.Next() {
		var (
			th        domain.Threshold
			serviceID string
		)
		if err := rows.Scan(&th.ID, &serviceID, &th.LowerLimit, &th.UpperLimit); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		out[domain.TargetID(serviceID)] = append(out[domain.TargetID(serviceID)], th)
	}
	return out, rows.Err()
}

func insertThresholds(ctx context.Context, tx pgx.Tx, id domain.TargetID, ts []domain.Threshold) error {
	for _, th := range ts {
		_, err := tx.Exec(ctx,
			`INSERT INTO thresholds (id, service_id, lower_limit, upper_limit)
			 VALUES ($1, $2, $3, $4)`,
			th.ID, string(id), th.LowerLimit, th.UpperLimit,
		)
		if err != nil {
			return fmt.Errorf("insert threshold: %w", err)
		}
	}
	return nil
}

func scanService(row pgx.CollectableRow) (domain.Service, error) {
	var (
		svc domain.Service
		id  string
	)
	err := row.Scan(&id, &svc.Name, &svc.URI, &svc.MonitorInterval, &svc.CreatedAt, &svc.UpdatedAt)
	svc.ID = domain.TargetID(id)
	return svc, err
}

func mapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return repo.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}
