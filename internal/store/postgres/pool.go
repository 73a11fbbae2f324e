package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed schema.sql
var schema string

// NewPool opens a connection pool whose connections encode and decode vector
// columns in binary. With migrate set, the schema (including the vector
// extension) is applied on a standalone connection first, since registering
// the vector type fails until the extension exists.
func NewPool(ctx context.Context, databaseURL string, migrate bool) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	if migrate {
		if err := applySchema(ctx, poolCfg.ConnConfig); err != nil {
			return nil, err
		}
	}

	poolCfg.AfterConnect = pgxvec.RegisterTypes
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return pool, nil
}

// applySchema creates the vector extension and tables when they are missing.
func applySchema(ctx context.Context, connCfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, connCfg.Copy())
	if err != nil {
		return fmt.Errorf("unable to connect for schema migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schema); err != nil {
		log.Printf("ERROR [PostgresStore] applySchema: %v", err)
		return fmt.Errorf("database error applying schema: %w", err)
	}
	log.Println("[PostgresStore] Schema is up to date.")
	return nil
}
