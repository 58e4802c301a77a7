package shopstash

import "testing"

func TestApplyTLS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"postgres://u:p@db.example.com:5432/app",
			"postgres://u:p@db.example.com:5432/app",
		},
		{
			"postgres://u:p@ep-cool-sky.eu-central-1.aws.neon.tech/app",
			"postgres://u:p@ep-cool-sky.eu-central-1.aws.neon.tech/app?sslmode=require",
		},
		{
			"postgres://u:p@ep-cool-sky.eu-central-1.aws.neon.tech/app?application_name=shopstash",
			"postgres://u:p@ep-cool-sky.eu-central-1.aws.neon.tech/app?application_name=shopstash&sslmode=require",
		},
		{
			"postgres://u:p@ep-cool-sky.aws.neon.tech/app?sslmode=require",
			"postgres://u:p@ep-cool-sky.aws.neon.tech/app?sslmode=require",
		},
		{
			// an explicit ssl mode is never overridden, even on managed hosts
			"postgres://u:p@ep-cool-sky.aws.neon.tech/app?sslmode=disable",
			"postgres://u:p@ep-cool-sky.aws.neon.tech/app?sslmode=disable",
		},
	}
	for _, tt := range tests {
		if got := applyTLS(tt.in); got != tt.want {
			t.Errorf("applyTLS(%q):\ngot  %q\nwant %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@configured/app")
	url, err := resolveDatabaseURL(ProfileProduction)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if url != "postgres://u:p@configured/app" {
		t.Errorf("url: got %q", url)
	}

	t.Setenv("DATABASE_URL", "")
	if _, err := resolveDatabaseURL(ProfileProduction); err == nil {
		t.Error("production without DATABASE_URL must fail fast")
	}

	url, err = resolveDatabaseURL(ProfileDevelopment)
	if err != nil {
		t.Fatalf("development fallback: %v", err)
	}
	if url != devDatabaseURL {
		t.Errorf("development fallback: got %q", url)
	}
}

func TestCredentialTableFromEnv(t *testing.T) {
	t.Setenv("SHOP_TOKEN_TABLE", "")
	t.Setenv("SHOP_TABLE", "")
	if got := credentialTableFromEnv(); got != "" {
		t.Errorf("unset: got %q", got)
	}

	t.Setenv("SHOP_TABLE", "public.shopity_shop")
	if got := credentialTableFromEnv(); got != "public.shopity_shop" {
		t.Errorf("legacy alias: got %q", got)
	}

	t.Setenv("SHOP_TOKEN_TABLE", "public.shopify_shop")
	if got := credentialTableFromEnv(); got != "public.shopify_shop" {
		t.Errorf("SHOP_TOKEN_TABLE must win: got %q", got)
	}
}

func TestGatewaySecretPrecedence(t *testing.T) {
	for _, name := range gatewaySecretEnv {
		t.Setenv(name, "")
	}
	if got := GatewaySecret(); got != "" {
		t.Errorf("unset: got %q", got)
	}

	t.Setenv("TOKEN_SYNC_SECRET", "sync")
	if got := GatewaySecret(); got != "sync" {
		t.Errorf("lowest precedence: got %q", got)
	}

	t.Setenv("TOKEN_RESOLVE_SECRET", "resolve")
	t.Setenv("INTERNAL_GATEWAY_SECRET", "gateway")
	if got := GatewaySecret(); got != "gateway" {
		t.Errorf("highest precedence: got %q", got)
	}
}

func TestDefaultMaxConns(t *testing.T) {
	if got := defaultMaxConns(ProfileProduction); got != 20 {
		t.Errorf("production: got %d, want 20", got)
	}
	if got := defaultMaxConns(ProfileDevelopment); got != 10 {
		t.Errorf("development: got %d, want 10", got)
	}
}
