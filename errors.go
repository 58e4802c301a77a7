package shopstash

import "errors"

var (
	// ErrNotFound is returned when a session or credential row does not exist,
	// or when a shop's credential is unusable because the shop uninstalled.
	ErrNotFound = errors.New("not found")

	// ErrNoCredentialTable is returned when no credential table could be
	// resolved. Reads and writes cannot proceed without a destination; a
	// silent no-op would hide credential loss.
	ErrNoCredentialTable = errors.New("no credential table found: create public.shopify_shop or set SHOP_TOKEN_TABLE")

	// ErrInvalidShopDomain is returned for shop identifiers that do not match
	// the *.myshopify.com pattern.
	ErrInvalidShopDomain = errors.New("invalid shop domain")
)
