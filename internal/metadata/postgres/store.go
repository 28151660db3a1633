// Package postgres implements internal/metadata.Store against PostgreSQL:
// pgx/pgxpool with manual row scanning for the hot-path
// participant/project/ACL/feedback tables, gorm for the lower-traffic
// Lesson, CodeReference and Comment tables where declarative row mapping
// saves real boilerplate.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store implements internal/metadata.Store.
type Store struct {
	pool *pgxpool.Pool
	gdb  *gorm.DB
}

// Open connects to connString (DATABASE_URL), runs pending migrations, and
// returns a ready Store.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("metadata/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata/postgres: ping: %w", err)
	}

	gdb, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata/postgres: gorm open: %w", err)
	}

	if err := runMigrations(connString); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, gdb: gdb}, nil
}

// Close releases the pgx pool and the separate *sql.DB that gorm opened.
func (s *Store) Close() error {
	s.pool.Close()
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Pool exposes the underlying connection pool for callers that need raw
// SQL access alongside the typed store, such as test fixtures seeding
// rows the store itself has no insert path for.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
