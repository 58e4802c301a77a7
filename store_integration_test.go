//go:build integration

package shopstash_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ledgerline-co/shopstash"
	"github.com/ledgerline-co/shopstash/credentials"
	"github.com/ledgerline-co/shopstash/internal/testutil"
	"github.com/ledgerline-co/shopstash/sessions"
)

// Legacy deployments only have the misspelled table; its DDL is what those
// databases actually contain.
const legacyTableDDL = `CREATE TABLE public.shopity_shop (
	shop_domain TEXT PRIMARY KEY,
	access_token TEXT,
	scopes TEXT,
	first_installed_at BIGINT,
	installed_at BIGINT,
	uninstalled_at BIGINT,
	updated_at BIGINT,
	last_auth_at BIGINT,
	last_callback_timestamp TEXT,
	host TEXT,
	embedded TEXT,
	locale TEXT,
	associated_user_scope TEXT
)`

func setupStore(t *testing.T) *shopstash.Store {
	t.Helper()
	connStr := testutil.SetupPostgres(t)
	store, err := shopstash.New(context.Background(), shopstash.WithDatabaseURL(connStr))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestColdStart_FallbackTableEndToEnd(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Only the second candidate exists, as in a legacy deployment.
	if _, err := store.DBExecutor().Exec(ctx, legacyTableDDL); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}

	creds := credentials.New(store)
	if err := creds.Upsert(ctx, credentials.Credential{
		ShopDomain:  "a.myshopify.com",
		AccessToken: "tok1",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	table, err := store.SchemaResolver().CredentialTable(ctx, store.DBExecutor(), false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table != "public.shopity_shop" {
		t.Errorf("resolved table: got %q, want public.shopity_shop", table)
	}

	var first, installed, updated int64
	err = store.DBExecutor().QueryRow(ctx,
		"SELECT first_installed_at, installed_at, updated_at FROM public.shopity_shop WHERE shop_domain = $1",
		"a.myshopify.com",
	).Scan(&first, &installed, &updated)
	if err != nil {
		t.Fatalf("read row: %v", err)
	}
	if first != installed || installed != updated {
		t.Errorf("fresh install timestamps should match: %d %d %d", first, installed, updated)
	}

	if err := creds.MarkUninstalled(ctx, "a.myshopify.com"); err != nil {
		t.Fatalf("mark uninstalled: %v", err)
	}
	if _, err := creds.AccessToken(ctx, "a.myshopify.com"); !errors.Is(err, shopstash.ErrNotFound) {
		t.Errorf("token after uninstall: got %v, want ErrNotFound", err)
	}
}

func TestColdStart_ConcurrentFirstCallers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.DBExecutor().Exec(ctx, legacyTableDDL); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}

	creds := credentials.New(store)
	sess := sessions.New(store)

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = creds.Upsert(ctx, credentials.Credential{
					ShopDomain:  fmt.Sprintf("shop-%d.myshopify.com", i),
					AccessToken: "tok",
				})
				return
			}
			errs[i] = sess.Put(ctx, &sessions.Session{
				ID:   fmt.Sprintf("session-%d", i),
				Shop: fmt.Sprintf("shop-%d.myshopify.com", i),
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if err := store.Ready(ctx); err != nil {
		t.Errorf("gate after cold start: %v", err)
	}
}
