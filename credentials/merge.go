package credentials

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// mergePolicy names how a column behaves when an upsert hits an existing row.
// Reconciliation replays must refresh liveness fields, must not destroy
// previously learned optional fields, and must never move first_installed_at.
type mergePolicy int

const (
	// conflictKey identifies the row; no update clause.
	conflictKey mergePolicy = iota
	// alwaysOverwrite takes the incoming value unconditionally.
	alwaysOverwrite
	// incomingWinsIfNonNull keeps the stored value unless the incoming one
	// is non-null: COALESCE(EXCLUDED.col, t.col).
	incomingWinsIfNonNull
	// existingWinsIfNonNull keeps the stored value whenever present:
	// COALESCE(t.col, EXCLUDED.col). Only first_installed_at uses this.
	existingWinsIfNonNull
	// clearToNull sets the column to NULL; a reconciliation implies the shop
	// is currently installed.
	clearToNull
)

// capabilities records which optional columns the resolved table carries.
// Computed once per process from the discovered column set and passed into
// the statement builder, which stays pure.
type capabilities struct {
	table                    string
	hasAccessTokenExpiresAt  bool
	hasRefreshToken          bool
	hasRefreshTokenExpiresAt bool
}

type upsertColumn struct {
	name   string
	policy mergePolicy
	value  func(in Credential, nowMs int64, callback string) any
}

// upsertColumns is the per-field policy table driving statement generation.
var upsertColumns = []upsertColumn{
	{"shop_domain", conflictKey, func(in Credential, _ int64, _ string) any { return in.ShopDomain }},
	{"access_token", alwaysOverwrite, func(in Credential, _ int64, _ string) any { return in.AccessToken }},
	{"scopes", alwaysOverwrite, func(in Credential, _ int64, _ string) any { return in.Scopes }},
	{"first_installed_at", existingWinsIfNonNull, func(_ Credential, now int64, _ string) any { return now }},
	{"installed_at", alwaysOverwrite, func(_ Credential, now int64, _ string) any { return now }},
	{"uninstalled_at", clearToNull, func(Credential, int64, string) any { return nil }},
	{"updated_at", alwaysOverwrite, func(_ Credential, now int64, _ string) any { return now }},
	{"last_auth_at", alwaysOverwrite, func(_ Credential, now int64, _ string) any { return now }},
	{"last_callback_timestamp", alwaysOverwrite, func(_ Credential, _ int64, cb string) any { return cb }},
	{"host", incomingWinsIfNonNull, func(in Credential, _ int64, _ string) any { return in.Host }},
	{"embedded", incomingWinsIfNonNull, func(in Credential, _ int64, _ string) any { return in.Embedded }},
	{"locale", incomingWinsIfNonNull, func(in Credential, _ int64, _ string) any { return in.Locale }},
	{"associated_user_scope", incomingWinsIfNonNull, func(in Credential, _ int64, _ string) any { return in.AssociatedUserScope }},
}

// optionalUpsertColumns are appended only when the resolved table carries the
// matching column; deployments migrated before token expiry landed lack them.
func optionalUpsertColumns(caps capabilities) []upsertColumn {
	var cols []upsertColumn
	if caps.hasAccessTokenExpiresAt {
		cols = append(cols, upsertColumn{"access_token_expires_at", incomingWinsIfNonNull,
			func(in Credential, _ int64, _ string) any { return in.AccessTokenExpiresAt }})
	}
	if caps.hasRefreshToken {
		cols = append(cols, upsertColumn{"refresh_token", incomingWinsIfNonNull,
			func(in Credential, _ int64, _ string) any { return in.RefreshToken }})
	}
	if caps.hasRefreshTokenExpiresAt {
		cols = append(cols, upsertColumn{"refresh_token_expires_at", incomingWinsIfNonNull,
			func(in Credential, _ int64, _ string) any { return in.RefreshTokenExpiresAt }})
	}
	return cols
}

func updateClause(table string, col upsertColumn) (string, bool) {
	switch col.policy {
	case alwaysOverwrite:
		return fmt.Sprintf("%s = EXCLUDED.%s", col.name, col.name), true
	case incomingWinsIfNonNull:
		return fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", col.name, col.name, table, col.name), true
	case existingWinsIfNonNull:
		return fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", col.name, table, col.name, col.name), true
	case clearToNull:
		return fmt.Sprintf("%s = NULL", col.name), true
	default:
		return "", false
	}
}

// buildUpsert produces the single atomic reconciliation statement for the
// resolved table shape. Pure: callers supply the capability set and clock.
func buildUpsert(caps capabilities, in Credential, nowMs int64) (string, []any, error) {
	callback := in.CallbackTimestamp
	if callback == "" {
		callback = time.UnixMilli(nowMs).UTC().Format("2006-01-02T15:04:05.000Z")
	}

	cols := append(append([]upsertColumn{}, upsertColumns...), optionalUpsertColumns(caps)...)

	names := make([]string, 0, len(cols))
	values := make([]any, 0, len(cols))
	clauses := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.name)
		values = append(values, col.value(in, nowMs, callback))
		if clause, ok := updateClause(caps.table, col); ok {
			clauses = append(clauses, clause)
		}
	}

	return psql.Insert(caps.table).
		Columns(names...).
		Values(values...).
		Suffix("ON CONFLICT (shop_domain) DO UPDATE SET " + strings.Join(clauses, ", ")).
		ToSql()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
