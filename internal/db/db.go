package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"resume-rag/internal/config"
)

const (
	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the configured driver; bun's pgdriver unless "pq" is asked for
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required for the pgvector backend")
	}
	switch cfg.Driver {
	case DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case DriverPgdriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Open connects, pings and prepares the schema
func Open(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitDB creates the vector extension and the index tables if needed
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*IndexRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create resume_indexes: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*ChunkRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create resume_chunks: %w", err)
	}
	_, err := db.NewCreateIndex().Model((*ChunkRecord)(nil)).Index("resume_chunks_corpus_idx").
		Column("corpus").IfNotExists().Exec(ctx)
	return err
}

// DropTables removes both tables and every index stored in them
func DropTables(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewDropTable().Model((*ChunkRecord)(nil)).IfExists().Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewDropTable().Model((*IndexRecord)(nil)).IfExists().Exec(ctx)
	return err
}
