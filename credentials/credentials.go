// Package credentials reconciles per-shop OAuth credentials against a table
// whose location and column set are discovered at runtime. All operations
// await the readiness gate before touching the database.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerline-co/shopstash"
	"github.com/ledgerline-co/shopstash/internal/pg"
	"github.com/ledgerline-co/shopstash/schema"
)

// Credential is the reconciliation input. Pointer fields are nullable;
// nil never overwrites a stored non-null value (see merge.go for the
// per-column policies). Timestamps are unix milliseconds.
type Credential struct {
	ShopDomain  string
	AccessToken string

	Scopes              *string
	Host                *string
	Embedded            *string
	Locale              *string
	AssociatedUserScope *string

	AccessTokenExpiresAt  *int64
	RefreshToken          *string
	RefreshTokenExpiresAt *int64

	// CallbackTimestamp defaults to the current time in ISO-8601 when empty.
	CallbackTimestamp string
}

// Store provides idempotent credential reconciliation over the resolved table.
type Store struct {
	exec     pg.Executor
	resolver *schema.Resolver
	gate     *schema.Bootstrap
}

// New creates a credential store using the given backend.
func New(b shopstash.Backend) *Store {
	return &Store{
		exec:     b.DBExecutor(),
		resolver: b.SchemaResolver(),
		gate:     b.Gate(),
	}
}

func (s *Store) requireTable(ctx context.Context) (string, error) {
	table, err := s.resolver.CredentialTable(ctx, s.exec, false)
	if err != nil {
		return "", err
	}
	if table == "" {
		return "", shopstash.ErrNoCredentialTable
	}
	return table, nil
}

func (s *Store) capabilities(ctx context.Context) (capabilities, error) {
	table, err := s.requireTable(ctx)
	if err != nil {
		return capabilities{}, err
	}
	cols, err := s.resolver.Columns(ctx, s.exec, table, false)
	if err != nil {
		return capabilities{}, err
	}
	has := func(name string) bool {
		_, ok := cols[name]
		return ok
	}
	return capabilities{
		table:                    table,
		hasAccessTokenExpiresAt:  has("access_token_expires_at"),
		hasRefreshToken:          has("refresh_token"),
		hasRefreshTokenExpiresAt: has("refresh_token_expires_at"),
	}, nil
}

// Upsert reconciles a shop's credential in a single atomic statement.
// Replaying the same input is safe: liveness fields refresh, optional fields
// never regress to null, and first_installed_at keeps its original value.
func (s *Store) Upsert(ctx context.Context, in Credential) error {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}
	caps, err := s.capabilities(ctx)
	if err != nil {
		return fmt.Errorf("credentials: upsert %s: %w", in.ShopDomain, err)
	}

	sql, args, err := buildUpsert(caps, in, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("credentials: upsert %s: build sql: %w", in.ShopDomain, err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("credentials: upsert %s: %w", in.ShopDomain, err)
	}
	return nil
}

// UpdateScopes overwrites a shop's scope CSV. Webhook-sourced scope changes
// are authoritative, so there are no merge semantics here.
func (s *Store) UpdateScopes(ctx context.Context, shopDomain string, scopes *string) error {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}
	table, err := s.requireTable(ctx)
	if err != nil {
		return fmt.Errorf("credentials: update scopes %s: %w", shopDomain, err)
	}

	sql, args, err := psql.Update(table).
		Set("scopes", scopes).
		Set("updated_at", time.Now().UnixMilli()).
		Where(sq.Eq{"shop_domain": shopDomain}).
		ToSql()
	if err != nil {
		return fmt.Errorf("credentials: update scopes %s: build sql: %w", shopDomain, err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("credentials: update scopes %s: %w", shopDomain, err)
	}
	return nil
}

// MarkUninstalled records an uninstall without deleting the row, preserving
// install history for re-install detection.
func (s *Store) MarkUninstalled(ctx context.Context, shopDomain string) error {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}
	table, err := s.requireTable(ctx)
	if err != nil {
		return fmt.Errorf("credentials: mark uninstalled %s: %w", shopDomain, err)
	}

	now := time.Now().UnixMilli()
	sql, args, err := psql.Update(table).
		Set("uninstalled_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"shop_domain": shopDomain}).
		ToSql()
	if err != nil {
		return fmt.Errorf("credentials: mark uninstalled %s: build sql: %w", shopDomain, err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("credentials: mark uninstalled %s: %w", shopDomain, err)
	}
	return nil
}

// AccessToken returns the shop's access token. Uninstalled shops have no
// usable credential even though their row persists; both that case and a
// missing row report ErrNotFound. Legacy rows use uninstalled_at = 0 for
// "installed", hence the two-sided check.
func (s *Store) AccessToken(ctx context.Context, shopDomain string) (string, error) {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return "", err
	}
	table, err := s.requireTable(ctx)
	if err != nil {
		return "", fmt.Errorf("credentials: access token %s: %w", shopDomain, err)
	}

	sql, args, err := psql.Select("access_token").
		From(table).
		Where(sq.Eq{"shop_domain": shopDomain}).
		Where("(uninstalled_at IS NULL OR uninstalled_at = 0)").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("credentials: access token %s: build sql: %w", shopDomain, err)
	}

	var token *string
	err = s.exec.QueryRow(ctx, sql, args...).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("credentials: access token %s: %w", shopDomain, shopstash.ErrNotFound)
		}
		return "", fmt.Errorf("credentials: access token %s: %w", shopDomain, err)
	}
	if token == nil || *token == "" {
		return "", fmt.Errorf("credentials: access token %s: %w", shopDomain, shopstash.ErrNotFound)
	}
	return *token, nil
}
