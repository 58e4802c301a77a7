// Package shopstash persists per-shop Shopify OAuth credentials and app
// session records in PostgreSQL. The credential table is owned by an external
// backend and varies in shape across deployments, so its location and column
// set are discovered at runtime; the session table is created by shopstash
// itself behind a shared one-shot readiness gate.
package shopstash

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline-co/shopstash/internal/codecs"
	"github.com/ledgerline-co/shopstash/internal/pg"
	"github.com/ledgerline-co/shopstash/schema"
)

// Store is the main entry point. It owns the PostgreSQL connection pool and
// the process-wide schema caches; construct one per process and share it.
type Store struct {
	pool *pg.Pool
	be   backend
}

// New connects to PostgreSQL and returns a configured Store. The connection
// string comes from WithDatabaseURL or, failing that, DATABASE_URL — required
// in the production profile, defaulted to local PostgreSQL in development.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	connString := cfg.databaseURL
	if connString == "" {
		resolved, err := resolveDatabaseURL(cfg.profile)
		if err != nil {
			return nil, err
		}
		connString = resolved
	}
	connString = applyTLS(connString)

	maxConns := cfg.maxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns(cfg.profile)
	}

	pool, err := pg.NewPool(ctx, connString, maxConns)
	if err != nil {
		return nil, fmt.Errorf("shopstash: %w", err)
	}

	credentialTable := cfg.credentialTable
	if credentialTable == "" {
		credentialTable = credentialTableFromEnv()
	}
	resolver := schema.NewResolver(credentialTable)

	return &Store{
		pool: pool,
		be: backend{
			exec:     pool,
			codec:    cfg.codec,
			resolver: resolver,
			gate:     schema.NewBootstrap(resolver),
		},
	}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ready blocks until the one-shot bootstrap (session DDL + credential table
// resolution) has completed, returning its cached outcome. Store operations
// await this internally; calling it at startup just surfaces failures sooner.
func (s *Store) Ready(ctx context.Context) error {
	return s.be.gate.Ready(ctx, s.be.exec)
}

// DBExecutor returns the underlying database executor.
func (s *Store) DBExecutor() pg.Executor { return s.be.exec }

// JSONCodec returns the configured session payload codec.
func (s *Store) JSONCodec() codecs.Codec { return s.be.codec }

// SchemaResolver returns the credential-table resolver.
func (s *Store) SchemaResolver() *schema.Resolver { return s.be.resolver }

// Gate returns the readiness gate shared by every store operation.
func (s *Store) Gate() *schema.Bootstrap { return s.be.gate }

// PgxPool returns the underlying pgxpool.Pool for use with stdlib adapters.
func (s *Store) PgxPool() *pgxpool.Pool { return s.pool.PgxPool() }
