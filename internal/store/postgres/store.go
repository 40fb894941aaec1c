// Package postgres is the PostgreSQL implementation of core.Store, built on
// a pgx connection pool.
//
// Imports are serialized with a transaction-scoped advisory lock: the
// transaction that holds it reads the highest identifier, inserts its rows
// with COPY, records the import and commits before the next one can read.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// importLockKey identifies the advisory lock taken by every import.
const importLockKey int64 = 0x7663_7573_7469_6d70

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

var customerColumns = []string{"vcustid", "vcustname", "mothercode", "vgroup"}

// Store implements core.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool using cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) ImportBatch(ctx context.Context, batch core.BatchWrite) ([]core.Customer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", importLockKey); err != nil {
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}

	cursor, err := currentCursor(ctx, tx)
	if err != nil {
		return nil, err
	}

	rows, err := batch.Plan(cursor)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Identifier.String()
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"valuedcustomer"},
		customerColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{ids[i], r.Name, r.MotherCode, r.Group}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("copy customers: %w", translateError(err))
	}
	if int(copied) != len(rows) {
		return nil, fmt.Errorf("copy customers: wrote %d of %d rows", copied, len(rows))
	}

	customers, err := findByIdentifiers(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	if err := insertRecord(ctx, tx, batch.Record, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit import: %w", translateError(err))
	}
	return customers, nil
}

// currentCursor returns the highest stored identifier, or core.EmptyCursor.
// Identifiers are fixed width, so the text maximum is the numeric maximum.
func currentCursor(ctx context.Context, tx pgx.Tx) (core.Identifier, error) {
	var highest pgtype.Text
	if err := tx.QueryRow(ctx, "SELECT MAX(vcustid) FROM valuedcustomer").Scan(&highest); err != nil {
		return 0, fmt.Errorf("read identifier cursor: %w", err)
	}
	if !highest.Valid {
		return core.EmptyCursor, nil
	}
	id, err := core.ParseIdentifier(highest.String)
	if err != nil {
		return 0, fmt.Errorf("read identifier cursor: %w", err)
	}
	return id, nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, rec core.ImportRecord, ids []string) error {
	var first, last pgtype.Text
	if len(ids) > 0 {
		first = pgtype.Text{String: ids[0], Valid: true}
		last = pgtype.Text{String: ids[len(ids)-1], Valid: true}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO customer_imports
			(batch_id, file_name, rows_inserted, rows_discarded, first_identifier, last_identifier, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.BatchID, rec.FileName, len(ids), rec.RowsDiscarded, first, last, rec.Source,
	)
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type customerRow struct {
	ID          string      `db:"vcustid"`
	Name        string      `db:"vcustname"`
	MotherCode  pgtype.Text `db:"mothercode"`
	Group       string      `db:"vgroup"`
	Active      bool        `db:"active"`
	UpdateCount int32       `db:"update_count"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r customerRow) toCustomer() (core.Customer, error) {
	id, err := core.ParseIdentifier(r.ID)
	if err != nil {
		return core.Customer{}, err
	}
	return core.Customer{
		Identifier:  id,
		Name:        r.Name,
		MotherCode:  r.MotherCode.String,
		Group:       r.Group,
		Active:      r.Active,
		UpdateCount: int(r.UpdateCount),
		CreatedAt:   r.CreatedAt,
	}, nil
}

func findByIdentifiers(ctx context.Context, q querier, ids []string) ([]core.Customer, error) {
	rows, err := q.Query(ctx, `
		SELECT vcustid, vcustname, mothercode, vgroup, active, update_count, created_at
		FROM valuedcustomer
		WHERE vcustid = ANY($1)
		ORDER BY vcustid`, ids)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}

	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByName[customerRow])
	if err != nil {
		return nil, fmt.Errorf("scan customers: %w", err)
	}

	out := make([]core.Customer, len(scanned))
	for i, r := range scanned {
		if out[i], err = r.toCustomer(); err != nil {
			return nil, fmt.Errorf("scan customers: %w", err)
		}
	}
	return out, nil
}

func (s *Store) FindByIdentifiers(ctx context.Context, ids []core.Identifier) ([]core.Customer, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	return findByIdentifiers(ctx, s.pool, keys)
}

type importRow struct {
	BatchID         string      `db:"batch_id"`
	FileName        string      `db:"file_name"`
	RowsInserted    int32       `db:"rows_inserted"`
	RowsDiscarded   int32       `db:"rows_discarded"`
	FirstIdentifier pgtype.Text `db:"first_identifier"`
	LastIdentifier  pgtype.Text `db:"last_identifier"`
	Source          string      `db:"source"`
	ImportedAt      time.Time   `db:"imported_at"`
}

func (s *Store) RecentImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id::text AS batch_id, file_name, rows_inserted, rows_discarded,
		       first_identifier, last_identifier, source, imported_at
		FROM customer_imports
		ORDER BY imported_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select imports: %w", err)
	}

	scanned, err := pgx.CollectRows(rows, pgx.RowToStructByName[importRow])
	if err != nil {
		return nil, fmt.Errorf("scan imports: %w", err)
	}

	out := make([]core.ImportRecord, len(scanned))
	for i, r := range scanned {
		out[i] = core.ImportRecord{
			BatchID:         r.BatchID,
			FileName:        r.FileName,
			RowsInserted:    int(r.RowsInserted),
			RowsDiscarded:   int(r.RowsDiscarded),
			FirstIdentifier: r.FirstIdentifier.String,
			LastIdentifier:  r.LastIdentifier.String,
			Source:          r.Source,
			ImportedAt:      r.ImportedAt,
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// translateError maps unique violations to core.ErrDuplicateIdentifier.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", core.ErrDuplicateIdentifier, pgErr.Detail)
	}
	return err
}

var _ core.Store = (*Store)(nil)
