// Package lifecycle composes the credential and session stores into the
// install, uninstall, and scope-change flows driven by the outer OAuth and
// webhook collaborators.
package lifecycle

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledgerline-co/shopstash"
	"github.com/ledgerline-co/shopstash/credentials"
	"github.com/ledgerline-co/shopstash/sessions"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// NormalizeShopDomain trims and lowercases a shop identifier and validates it
// against the *.myshopify.com pattern.
func NormalizeShopDomain(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if !shopDomainPattern.MatchString(normalized) {
		return "", shopstash.ErrInvalidShopDomain
	}
	return normalized, nil
}

// Hooks bundles the two stores behind the flows webhook handlers call.
type Hooks struct {
	credentials *credentials.Store
	sessions    *sessions.Store
}

// New creates lifecycle hooks over the given backend.
func New(b shopstash.Backend) *Hooks {
	return &Hooks{
		credentials: credentials.New(b),
		sessions:    sessions.New(b),
	}
}

// Credentials returns the underlying credential store.
func (h *Hooks) Credentials() *credentials.Store { return h.credentials }

// Sessions returns the underlying session store.
func (h *Hooks) Sessions() *sessions.Store { return h.sessions }

// CredentialFromSession maps a materialized OAuth session onto a
// reconciliation input. Locale and associated-user scope come from the
// online-access block when present.
func CredentialFromSession(sess *sessions.Session) credentials.Credential {
	in := credentials.Credential{
		ShopDomain:   sess.Shop,
		AccessToken:  sess.AccessToken,
		Scopes:       nullable(sess.Scope),
		RefreshToken: nullable(sess.RefreshToken),
	}
	if sess.Expires != nil {
		ms := sess.Expires.UnixMilli()
		in.AccessTokenExpiresAt = &ms
	}
	if sess.RefreshTokenExpires != nil {
		ms := sess.RefreshTokenExpires.UnixMilli()
		in.RefreshTokenExpiresAt = &ms
	}
	if info := sess.OnlineAccessInfo; info != nil {
		if scope, ok := info["associated_user_scope"].(string); ok {
			in.AssociatedUserScope = nullable(scope)
		}
		if user, ok := info["associated_user"].(map[string]any); ok {
			if locale, ok := user["locale"].(string); ok {
				in.Locale = nullable(locale)
			}
		}
	}
	return in
}

// AfterAuth persists the freshly authenticated session and reconciles the
// shop's credential from it. A failed reconciliation is logged rather than
// returned so the OAuth flow itself still completes; the next auth or
// webhook retries it.
func (h *Hooks) AfterAuth(ctx context.Context, sess *sessions.Session) error {
	if err := h.sessions.Put(ctx, sess); err != nil {
		return err
	}

	if sess.AccessToken == "" {
		slog.Error("missing access token during afterAuth", "shop", sess.Shop)
		return nil
	}
	if err := h.credentials.Upsert(ctx, CredentialFromSession(sess)); err != nil {
		slog.Error("failed to reconcile shop credential", "shop", sess.Shop, "error", err)
	}
	return nil
}

// Uninstalled marks the shop uninstalled and deletes its sessions. Each half
// tolerates the other's failure so a partial outage still cleans up what it
// can; the webhook is acknowledged either way.
func (h *Hooks) Uninstalled(ctx context.Context, shop string) error {
	if err := h.credentials.MarkUninstalled(ctx, shop); err != nil {
		slog.Error("failed to mark shop uninstalled", "shop", shop, "error", err)
	}

	found, err := h.sessions.FindByShop(ctx, shop)
	if err != nil {
		slog.Error("failed to list sessions for uninstall", "shop", shop, "error", err)
		return nil
	}
	ids := make([]string, 0, len(found))
	for _, sess := range found {
		ids = append(ids, sess.ID)
	}
	if err := h.sessions.DeleteMany(ctx, ids); err != nil {
		slog.Error("failed to delete sessions for uninstall", "shop", shop, "error", err)
	}
	return nil
}

// ScopesUpdated applies an authoritative scope change to the credential row
// and to every stored session for the shop.
func (h *Hooks) ScopesUpdated(ctx context.Context, shop string, scopes []string) error {
	csv := strings.Join(scopes, ",")
	if err := h.credentials.UpdateScopes(ctx, shop, nullable(csv)); err != nil {
		slog.Error("failed to update credential scopes", "shop", shop, "error", err)
	}

	found, err := h.sessions.FindByShop(ctx, shop)
	if err != nil {
		slog.Error("failed to list sessions for scope update", "shop", shop, "error", err)
		return nil
	}
	for _, sess := range found {
		sess.Scope = csv
		if err := h.sessions.Put(ctx, sess); err != nil {
			slog.Error("failed to update session scope", "shop", shop, "session", sess.ID, "error", err)
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
