package schema

import (
	"context"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeExec is an in-memory pg.Executor: DDL calls are recorded, to_regclass
// probes answer from the tables set, and information_schema queries answer
// from the columns map.
type fakeExec struct {
	mu         sync.Mutex
	execCalls  []string
	probeCalls []string
	queryCalls []string

	execErr error
	tables  map[string]bool
	columns map[string][]string

	// blockExec, when set, is received from before any Exec returns.
	blockExec chan struct{}
}

func (f *fakeExec) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if f.blockExec != nil {
		<-f.blockExec
	}
	f.mu.Lock()
	f.execCalls = append(f.execCalls, sql)
	err := f.execErr
	f.mu.Unlock()
	return pgconn.CommandTag{}, err
}

func (f *fakeExec) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if strings.Contains(sql, "to_regclass") {
		name := args[0].(string)
		f.mu.Lock()
		f.probeCalls = append(f.probeCalls, name)
		exists := f.tables[name]
		f.mu.Unlock()
		if exists {
			return &fakeRow{regclass: &name}
		}
		return &fakeRow{}
	}
	return &fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeExec) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.mu.Lock()
	f.queryCalls = append(f.queryCalls, sql)
	f.mu.Unlock()
	if strings.Contains(sql, "information_schema") {
		key := args[0].(string) + "." + args[1].(string)
		return &fakeRows{names: f.columns[key]}, nil
	}
	return &fakeRows{}, nil
}

func (f *fakeExec) execCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.execCalls)
}

func (f *fakeExec) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probeCalls)
}

func (f *fakeExec) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queryCalls)
}

type fakeRow struct {
	regclass *string
	err      error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(**string); ok {
		*p = r.regclass
	}
	return nil
}

type fakeRows struct {
	names []string
	pos   int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.names) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.names[r.pos-1]
	return nil
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
