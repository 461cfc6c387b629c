// Package store keeps the client's durable state in a local SQLite file.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

const openTimeout = 30 * time.Second

// Store wraps the gorm handle.
type Store struct {
	path   string
	db     *gorm.DB
	logger logger.Interface
}

// New prepares a store backed by the SQLite file at path. Call Start before
// use.
func New(path string, debug bool) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", filepath.Dir(path), err)
		}
	}
	l := logger.Default.LogMode(logger.Silent)
	if debug {
		l = logger.Default.LogMode(logger.Warn)
	}
	return &Store{path: path, logger: l}, nil
}

// Open is New followed by Start and Migrate.
func Open(ctx context.Context, path string, debug bool) (*Store, error) {
	s, err := New(path, debug)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Start opens the database, giving up after a timeout.
func (s *Store) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	type result struct {
		db  *gorm.DB
		err error
	}
	resC := make(chan result, 1)
	go func() {
		db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{Logger: s.logger})
		resC <- result{db: db, err: err}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("store: timed out opening database: %w", ctx.Err())
		}
		return ctx.Err()
	case res := <-resC:
		if res.err != nil {
			return fmt.Errorf("store: failed to open database: %w", res.err)
		}
		s.db = res.db
	}
	return nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store: not started")
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&Setting{}, &Run{}); err != nil {
		return fmt.Errorf("store: failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: failed to get database handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	s.db = nil
	return nil
}
