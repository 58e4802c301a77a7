package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/ledgerline-co/shopstash/internal/pg"
)

// ErrInvalidTableName is returned when a table name is not a valid
// schema.table pair of plain identifiers.
var ErrInvalidTableName = errors.New("invalid qualified table name")

// DefaultCredentialTables is the ordered pair of candidate credential tables
// tried when no explicit override is configured. The second entry is the
// misspelled legacy table that older deployments still carry.
var DefaultCredentialTables = [2]string{"public.shopify_shop", "public.shopity_shop"}

var qualifiedName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// NormalizeQualifiedTableName trims value, qualifies bare names with the
// public schema, and validates the result as schema.table with identifier
// characters only. It reports false for anything else, including empty input.
func NormalizeQualifiedTableName(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	qualified := trimmed
	if !strings.Contains(qualified, ".") {
		qualified = "public." + qualified
	}
	if !qualifiedName.MatchString(qualified) {
		return "", false
	}
	return qualified, true
}

func splitQualifiedTableName(tableName string) (schemaName, table string, err error) {
	parts := strings.Split(tableName, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("schema: %w: %q", ErrInvalidTableName, tableName)
	}
	return parts[0], parts[1], nil
}

// Resolver discovers which physical table holds shop credentials and what
// columns it carries. Both facts are memoized for the process lifetime; a
// forceRefresh re-queries. The "no table exists" outcome is cached too,
// distinct from "not yet resolved".
type Resolver struct {
	configured string

	mu          sync.Mutex
	resolved    bool
	table       string // "" when no candidate table exists
	columnCache map[string]map[string]struct{}
}

// NewResolver returns a Resolver. configured is an optional table override;
// it is validated lazily at resolution time so that a bad value degrades to
// the default candidates with a warning instead of failing construction.
func NewResolver(configured string) *Resolver {
	return &Resolver{
		configured:  configured,
		columnCache: make(map[string]map[string]struct{}),
	}
}

// CredentialTable resolves the authoritative credential table. It returns ""
// with a nil error when no candidate table exists. The result is cached;
// pass forceRefresh to re-query.
func (r *Resolver) CredentialTable(ctx context.Context, exec pg.Executor, forceRefresh bool) (string, error) {
	r.mu.Lock()
	if r.resolved && !forceRefresh {
		table := r.table
		r.mu.Unlock()
		return table, nil
	}
	if forceRefresh {
		r.resolved = false
	}
	r.mu.Unlock()

	table, err := r.resolve(ctx, exec)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.resolved = true
	r.table = table
	r.mu.Unlock()
	return table, nil
}

func (r *Resolver) resolve(ctx context.Context, exec pg.Executor) (string, error) {
	if r.configured != "" {
		configured, ok := NormalizeQualifiedTableName(r.configured)
		if !ok {
			slog.Warn("ignoring malformed credential table override", "configured", r.configured)
		} else {
			exists, err := tableExists(ctx, exec, configured)
			if err != nil {
				return "", err
			}
			if exists {
				return configured, nil
			}
			slog.Warn("configured credential table not found in database", "table", configured)
		}
	}

	for i, candidate := range DefaultCredentialTables {
		exists, err := tableExists(ctx, exec, candidate)
		if err != nil {
			return "", err
		}
		if exists {
			if i > 0 {
				slog.Warn("using fallback credential table; set SHOP_TOKEN_TABLE to pin it explicitly",
					"table", candidate)
			}
			return candidate, nil
		}
	}

	return "", nil
}

func tableExists(ctx context.Context, exec pg.Executor, tableName string) (bool, error) {
	var regclass *string
	err := exec.QueryRow(ctx, "SELECT to_regclass($1)::text", tableName).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("schema: check table %s: %w", tableName, err)
	}
	return regclass != nil, nil
}

// Columns returns the lower-cased column-name set of a qualified table,
// memoized per table name. Pass forceRefresh to bypass the cache.
func (r *Resolver) Columns(ctx context.Context, exec pg.Executor, tableName string, forceRefresh bool) (map[string]struct{}, error) {
	r.mu.Lock()
	if cols, ok := r.columnCache[tableName]; ok && !forceRefresh {
		r.mu.Unlock()
		return cols, nil
	}
	r.mu.Unlock()

	schemaName, table, err := splitQualifiedTableName(tableName)
	if err != nil {
		return nil, err
	}

	rows, err := exec.Query(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2",
		schemaName, table,
	)
	if err != nil {
		return nil, fmt.Errorf("schema: columns of %s: %w", tableName, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("schema: columns of %s: scan: %w", tableName, err)
		}
		cols[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: columns of %s: %w", tableName, err)
	}

	r.mu.Lock()
	r.columnCache[tableName] = cols
	r.mu.Unlock()
	return cols, nil
}

// Invalidate drops all cached resolution state so the next call re-queries.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.resolved = false
	r.table = ""
	r.columnCache = make(map[string]map[string]struct{})
	r.mu.Unlock()
}
