package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerline-co/shopstash"
	"github.com/ledgerline-co/shopstash/internal/codecs"
	"github.com/ledgerline-co/shopstash/internal/pg"
	"github.com/ledgerline-co/shopstash/schema"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// FindLimit caps FindByShop results. A shop accumulates at most a handful of
// live sessions (online + offline), so one page is plenty.
const FindLimit = 25

// Store provides CRUD over the session table, gated on the shared bootstrap.
type Store struct {
	exec  pg.Executor
	codec codecs.Codec
	gate  *schema.Bootstrap
}

// New creates a session store using the given backend.
func New(b shopstash.Backend) *Store {
	return &Store{
		exec:  b.DBExecutor(),
		codec: b.JSONCodec(),
		gate:  b.Gate(),
	}
}

// Put inserts or replaces a session by id. created_at is kept on replace.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}

	payload, err := s.codec.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessions: put %s: marshal: %w", sess.ID, err)
	}

	now := time.Now().UnixMilli()
	sql, args, err := psql.Insert(schema.SessionTable).
		Columns("id", "shop", "is_online", "expires_at", "session_data", "created_at", "updated_at").
		Values(sess.ID, sess.Shop, sess.IsOnline, sess.Expires, payload, now, now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
shop = EXCLUDED.shop,
is_online = EXCLUDED.is_online,
expires_at = EXCLUDED.expires_at,
session_data = EXCLUDED.session_data,
updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("sessions: put %s: build sql: %w", sess.ID, err)
	}

	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("sessions: put %s: %w", sess.ID, err)
	}
	return nil
}

// Load returns the session with the given id, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.Select("session_data").
		From(schema.SessionTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sessions: load %s: build sql: %w", id, err)
	}

	var payload []byte
	err = s.exec.QueryRow(ctx, sql, args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sessions: load %s: %w", id, shopstash.ErrNotFound)
		}
		return nil, fmt.Errorf("sessions: load %s: %w", id, err)
	}

	var sess Session
	if err := s.codec.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("sessions: load %s: unmarshal: %w", id, err)
	}
	return &sess, nil
}

// Delete removes a session. Deleting a session that is already gone is fine;
// uninstall webhooks are redelivered.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}

	sql, args, err := psql.Delete(schema.SessionTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sessions: delete %s: build sql: %w", id, err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("sessions: delete %s: %w", id, err)
	}
	return nil
}

// DeleteMany removes a batch of sessions. An empty batch succeeds without
// issuing a database call — uninstall handling always calls this, even when
// a shop has zero sessions left.
func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return err
	}

	sql, args, err := psql.Delete(schema.SessionTable).Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return fmt.Errorf("sessions: delete %d sessions: build sql: %w", len(ids), err)
	}
	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("sessions: delete %d sessions: %w", len(ids), err)
	}
	return nil
}

// FindByShop returns a shop's sessions, most recently updated first, capped
// at FindLimit.
func (s *Store) FindByShop(ctx context.Context, shop string) ([]*Session, error) {
	if err := s.gate.Ready(ctx, s.exec); err != nil {
		return nil, err
	}

	sql, args, err := psql.Select("session_data").
		From(schema.SessionTable).
		Where(sq.Eq{"shop": shop}).
		OrderBy("updated_at DESC").
		Limit(FindLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sessions: find by shop %s: build sql: %w", shop, err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: find by shop %s: %w", shop, err)
	}
	defer rows.Close()

	var found []*Session
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sessions: find by shop %s: scan: %w", shop, err)
		}
		var sess Session
		if err := s.codec.Unmarshal(payload, &sess); err != nil {
			return nil, fmt.Errorf("sessions: find by shop %s: unmarshal: %w", shop, err)
		}
		found = append(found, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sessions: find by shop %s: %w", shop, err)
	}
	return found, nil
}
