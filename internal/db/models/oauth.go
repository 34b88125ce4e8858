package models

import "time"

// OAuthProvider is an administratively registered external provider. The
// client secret never leaves the server: it is excluded from JSON output.
type OAuthProvider struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	DisplayName  string    `json:"display_name"`
	ClientID     string    `json:"-"`
	ClientSecret string    `json:"-"`
	AuthorizeURL string    `json:"-"`
	TokenURL     string    `json:"-"`
	RevokeURL    string    `json:"-"`
	Scopes       string    `json:"scopes"` // space-separated
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// OAuthGrant stores the delegated tokens for one (provider, identity) pair.
// A new authorization overwrites the prior grant.
type OAuthGrant struct {
	ProviderID   string `gorm:"primaryKey"`
	UserIdentity string `gorm:"primaryKey"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string
	ExpiresAt    time.Time
	GrantedAt    time.Time
}

// AuthorizationRequest is the ephemeral record of a started OAuth flow. It is
// deleted when the callback consumes it, or swept once its TTL elapses.
type AuthorizationRequest struct {
	State        string    `gorm:"primaryKey"`
	ProviderID   string    `gorm:"not null"`
	UserIdentity string    `gorm:"not null"`
	RedirectURI  string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"index"`
}
