package shopstash

import "github.com/ledgerline-co/shopstash/internal/codecs"

type Option func(*storeConfig)

type storeConfig struct {
	codec           codecs.Codec
	profile         Profile
	databaseURL     string
	credentialTable string
	maxConns        int32
}

func defaultConfig() *storeConfig {
	return &storeConfig{
		codec:   codecs.NewJSONIter(),
		profile: ProfileDevelopment,
	}
}

// WithCodec overrides the session payload codec.
func WithCodec(c codecs.Codec) Option {
	return func(cfg *storeConfig) {
		cfg.codec = c
	}
}

// WithProfile selects connection defaults. ProfileProduction requires an
// explicit DATABASE_URL and sizes the pool for multi-instance deployments.
func WithProfile(p Profile) Option {
	return func(cfg *storeConfig) {
		cfg.profile = p
	}
}

// WithDatabaseURL bypasses DATABASE_URL resolution.
func WithDatabaseURL(url string) Option {
	return func(cfg *storeConfig) {
		cfg.databaseURL = url
	}
}

// WithCredentialTable pins the credential table, overriding both the
// SHOP_TOKEN_TABLE/SHOP_TABLE variables and the built-in candidates.
func WithCredentialTable(name string) Option {
	return func(cfg *storeConfig) {
		cfg.credentialTable = name
	}
}

// WithMaxConns overrides the profile's pool size.
func WithMaxConns(n int32) Option {
	return func(cfg *storeConfig) {
		cfg.maxConns = n
	}
}
