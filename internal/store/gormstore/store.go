// Package gormstore implements core.Store with gorm on MySQL or SQLite.
//
// Imports are serialized by locking the identifier row of sequence_counters
// (SELECT ... FOR UPDATE on MySQL). SQLite has no row locks; it serializes
// writers on its own and unique violations are retried by the caller.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

// DefaultInsertBatchSize is the rows per INSERT when none is configured.
const DefaultInsertBatchSize = 500

// Store implements core.Store on gorm.
type Store struct {
	db        *gorm.DB
	batchSize int
}

// Open connects to the database named by cfg.Driver ("mysql" or "sqlite").
func Open(cfg config.DatabaseConfig, insertBatchSize int) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "mysql":
		dialector = mysql.Open(cfg.URL)
	case "sqlite":
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	// An in-memory SQLite database lives only while a connection is open,
	// so the idle pool is never shrunk to zero.
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MinConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return New(db, insertBatchSize), nil
}

// New wraps an open gorm handle. It should be opened with TranslateError.
func New(db *gorm.DB, insertBatchSize int) *Store {
	if insertBatchSize <= 0 {
		insertBatchSize = DefaultInsertBatchSize
	}
	return &Store{db: db, batchSize: insertBatchSize}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&customerModel{}, &importModel{}, &SequenceCounter{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) ImportBatch(ctx context.Context, batch core.BatchWrite) ([]core.Customer, error) {
	var customers []core.Customer

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter, err := lockCounter(tx)
		if err != nil {
			return err
		}

		cursor, err := currentCursor(tx, counter)
		if err != nil {
			return err
		}

		rows, err := batch.Plan(cursor)
		if err != nil {
			return err
		}

		ids := make([]string, len(rows))
		models := make([]customerModel, len(rows))
		for i, r := range rows {
			ids[i] = r.Identifier.String()
			models[i] = customerModel{
				VCustID:    ids[i],
				VCustName:  r.Name,
				MotherCode: r.MotherCode,
				VGroup:     r.Group,
				Active:     true,
			}
		}

		rec := importModel{
			BatchID:       batch.Record.BatchID,
			FileName:      batch.Record.FileName,
			RowsInserted:  len(rows),
			RowsDiscarded: batch.Record.RowsDiscarded,
			Source:        batch.Record.Source,
		}

		if len(rows) > 0 {
			if err := tx.CreateInBatches(models, s.batchSize).Error; err != nil {
				return fmt.Errorf("insert customers: %w", translateError(err))
			}

			last := ids[len(ids)-1]
			if err := tx.Model(&counter).Update("last_value", last).Error; err != nil {
				return fmt.Errorf("advance identifier counter: %w", err)
			}

			rec.FirstIdentifier = &ids[0]
			rec.LastIdentifier = &last
		}

		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record import: %w", err)
		}

		customers, err = findByIdentifiers(tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// lockCounter returns the identifier counter row, locked for update, creating
// it on first use.
func lockCounter(tx *gorm.DB) (SequenceCounter, error) {
	seed := SequenceCounter{Name: identifierCounter, LastValue: core.EmptyCursor.String()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return SequenceCounter{}, fmt.Errorf("seed identifier counter: %w", err)
	}

	var counter SequenceCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", identifierCounter).
		First(&counter).Error
	if err != nil {
		return SequenceCounter{}, fmt.Errorf("lock identifier counter: %w", err)
	}
	return counter, nil
}

// currentCursor is the larger of the counter and the highest stored
// identifier, so rows written outside the importer are never reused.
func currentCursor(tx *gorm.DB, counter SequenceCounter) (core.Identifier, error) {
	cursor, err := core.ParseIdentifier(counter.LastValue)
	if err != nil {
		return 0, fmt.Errorf("read identifier counter: %w", err)
	}

	var highest sql.NullString
	if err := tx.Raw("SELECT MAX(vcustid) FROM valuedcustomer").Row().Scan(&highest); err != nil {
		return 0, fmt.Errorf("read identifier cursor: %w", err)
	}
	if !highest.Valid || highest.String == "" {
		return cursor, nil
	}

	stored, err := core.ParseIdentifier(highest.String)
	if err != nil {
		return 0, fmt.Errorf("read identifier cursor: %w", err)
	}
	return max(cursor, stored), nil
}

func findByIdentifiers(db *gorm.DB, ids []string) ([]core.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []customerModel
	if err := db.Where("vcustid IN ?", ids).Order("vcustid").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}

	out := make([]core.Customer, len(models))
	for i, m := range models {
		c, err := m.toCustomer()
		if err != nil {
			return nil, fmt.Errorf("select customers: %w", err)
		}
		out[i] = c
	}
	return out, nil
}

func (s *Store) FindByIdentifiers(ctx context.Context, ids []core.Identifier) ([]core.Customer, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	return findByIdentifiers(s.db.WithContext(ctx), keys)
}

func (s *Store) RecentImports(ctx context.Context, limit int) ([]core.ImportRecord, error) {
	var models []importModel
	err := s.db.WithContext(ctx).
		Order("imported_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("select imports: %w", err)
	}

	out := make([]core.ImportRecord, len(models))
	for i, m := range models {
		out[i] = m.toRecord()
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError maps gorm's duplicate key error to core.ErrDuplicateIdentifier.
func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", core.ErrDuplicateIdentifier, err)
	}
	return err
}

var _ core.Store = (*Store)(nil)
