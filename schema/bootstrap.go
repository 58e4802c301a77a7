// Package schema owns runtime schema discovery and bootstrap for shopstash:
// which physical table holds shop credentials, what columns it carries, and
// the one-shot readiness gate that creates the session table before any
// store operation touches the database.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerline-co/shopstash/internal/pg"
)

// SessionTable is the fixed, shopstash-owned session table.
const SessionTable = "public.shopify_app_session"

func sessionDDL() string {
	return `CREATE TABLE IF NOT EXISTS public.shopify_app_session (
	id TEXT PRIMARY KEY,
	shop TEXT NOT NULL,
	is_online BOOLEAN NOT NULL DEFAULT false,
	expires_at TIMESTAMPTZ NULL,
	session_data JSONB NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`
}

func sessionShopIndexDDL() string {
	return `CREATE INDEX IF NOT EXISTS shopify_app_session_shop_idx
ON public.shopify_app_session (shop)`
}

// Bootstrap is the readiness gate in front of all storage operations. The
// first Ready caller starts the bootstrap exactly once: idempotent session
// DDL, then a force-refreshed credential-table resolution so a missing table
// is warned about early. Success or failure is cached and returned to every
// awaiter; a failed bootstrap leaves the store unavailable until restart.
type Bootstrap struct {
	resolver *Resolver

	mu   sync.Mutex
	done chan struct{}
	err  error
}

// NewBootstrap returns a gate that has not started yet.
func NewBootstrap(resolver *Resolver) *Bootstrap {
	return &Bootstrap{resolver: resolver}
}

// Ready blocks until the bootstrap has completed and returns its cached
// outcome. The bootstrap itself runs on a background context so that a
// cancelled first caller only abandons its own wait, not the shared work.
func (b *Bootstrap) Ready(ctx context.Context, exec pg.Executor) error {
	b.mu.Lock()
	if b.done == nil {
		b.done = make(chan struct{})
		go b.run(b.done, exec)
	}
	done := b.done
	b.mu.Unlock()

	select {
	case <-done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bootstrap) run(done chan struct{}, exec pg.Executor) {
	// b.err is written before close(done); awaiters read it after.
	b.err = b.bootstrap(context.Background(), exec)
	if b.err != nil {
		slog.Error("database bootstrap failed", "error", b.err)
	}
	close(done)
}

func (b *Bootstrap) bootstrap(ctx context.Context, exec pg.Executor) error {
	if _, err := exec.Exec(ctx, sessionDDL()); err != nil {
		return fmt.Errorf("schema: create session table: %w", err)
	}
	if _, err := exec.Exec(ctx, sessionShopIndexDDL()); err != nil {
		return fmt.Errorf("schema: create session shop index: %w", err)
	}

	table, err := b.resolver.CredentialTable(ctx, exec, true)
	if err != nil {
		return err
	}
	if table == "" {
		slog.Warn("no credential table found; create public.shopify_shop or set SHOP_TOKEN_TABLE")
	}
	return nil
}
