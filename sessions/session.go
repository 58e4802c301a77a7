// Package sessions stores serialized app sessions in the fixed-schema
// shopify_app_session table. The full session travels as an opaque JSONB
// payload so fields unknown to this layer survive round-trips; time fields
// use ISO-8601 strings on the wire.
package sessions

import "time"

// Session is the materialized OAuth session handed over by the platform SDK
// after the handshake completes. A shop can hold several at once (online and
// offline).
type Session struct {
	ID          string     `json:"id"`
	Shop        string     `json:"shop"`
	State       string     `json:"state,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	Scope       string     `json:"scope,omitempty"`
	AccessToken string     `json:"accessToken,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`

	RefreshToken        string     `json:"refreshToken,omitempty"`
	RefreshTokenExpires *time.Time `json:"refreshTokenExpires,omitempty"`

	// OnlineAccessInfo carries the SDK's associated-user block untouched.
	OnlineAccessInfo map[string]any `json:"onlineAccessInfo,omitempty"`
}
