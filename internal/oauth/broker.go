// Package oauth brokers delegated access: users authorize an external
// provider once, and the agent runtime later receives a short-lived token by
// value. Primary credentials and refresh tokens never leave the server.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codebine/agentchat/internal/db/models"
)

// expirySkew treats tokens this close to expiry as already expired, so a
// token handed to the agent survives the invocation.
const expirySkew = time.Minute

// Broker manages the full delegation lifecycle per (provider, identity) key.
type Broker struct {
	db       *gorm.DB
	stateTTL time.Duration

	// every grant read-modify-write (refresh, callback save, revoke) on the
	// same (provider, identity) key runs under its key lock, so a refresh
	// cannot clobber a concurrent re-authorization or resurrect a revoked
	// grant. The map holds one mutex per key ever seen and is never evicted;
	// it is bounded by the number of (provider, user) pairs.
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewBroker creates a broker whose authorization requests expire after
// stateTTL.
func NewBroker(db *gorm.DB, stateTTL time.Duration) *Broker {
	return &Broker{
		db:       db,
		stateTTL: stateTTL,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// Providers lists registered providers for the client UI. Secret fields are
// excluded from serialization at the model level.
func (b *Broker) Providers() ([]models.OAuthProvider, error) {
	var providers []models.OAuthProvider
	err := b.db.Order("id ASC").Find(&providers).Error
	return providers, err
}

// BeginAuthorization starts the flow: it persists an ephemeral authorization
// request under a fresh random state token and returns the provider's
// authorize URL with that state embedded.
func (b *Broker) BeginAuthorization(providerID, userIdentity, redirectURI string) (string, error) {
	provider, err := b.provider(providerID)
	if err != nil {
		return "", err
	}

	state := newStateToken()
	req := models.AuthorizationRequest{
		State:        state,
		ProviderID:   provider.ID,
		UserIdentity: userIdentity,
		RedirectURI:  redirectURI,
		CreatedAt:    time.Now(),
	}
	if err := b.db.Create(&req).Error; err != nil {
		return "", err
	}

	cfg := oauthConfig(provider, redirectURI)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteAuthorization consumes the authorization request matching state
// (exactly once), exchanges the code, and overwrites the grant for the
// (provider, identity) pair.
func (b *Broker) CompleteAuthorization(ctx context.Context, code, state string) (*models.OAuthGrant, error) {
	var req models.AuthorizationRequest
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidState
			}
			return err
		}
		// Single use: the delete doubles as the replay check, a second
		// callback with the same state finds nothing to delete.
		res := tx.Where("state = ?", state).Delete(&models.AuthorizationRequest{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if time.Since(req.CreatedAt) > b.stateTTL {
		// Expired request, already consumed above so it can never be
		// completed later either.
		return nil, ErrInvalidState
	}

	provider, err := b.provider(req.ProviderID)
	if err != nil {
		return nil, err
	}

	cfg := oauthConfig(provider, req.RedirectURI)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	grant := models.OAuthGrant{
		ProviderID:   provider.ID,
		UserIdentity: req.UserIdentity,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		GrantedAt:    time.Now(),
	}

	// The write waits for any in-flight refresh on the same key, so the fresh
	// authorization always lands last and cannot be clobbered by a refresh
	// persisting the old token family.
	lock := b.keyLock(grantKey(provider.ID, req.UserIdentity))
	lock.Lock()
	err = b.saveGrant(&grant)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	log.Printf("✅ OAuth grant stored for %s on provider %s (expires %s)",
		grant.UserIdentity, grant.ProviderID, grant.ExpiresAt.Format(time.RFC3339))
	return &grant, nil
}

// GetValidToken returns an unexpired access token for the pair, refreshing
// first when possible. It returns ErrNotAuthorized instead of propagating
// provider failures so callers can degrade.
func (b *Broker) GetValidToken(ctx context.Context, providerID, userIdentity string) (string, error) {
	lock := b.keyLock(grantKey(providerID, userIdentity))
	lock.Lock()
	defer lock.Unlock()

	var grant models.OAuthGrant
	err := b.db.Where("provider_id = ? AND user_identity = ?", providerID, userIdentity).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotAuthorized
	}
	if err != nil {
		return "", err
	}

	if grant.ExpiresAt.After(time.Now().Add(expirySkew)) {
		return grant.AccessToken, nil
	}
	if grant.RefreshToken == "" {
		return "", ErrNotAuthorized
	}

	provider, err := b.provider(providerID)
	if err != nil {
		return "", ErrNotAuthorized
	}

	newToken, err := b.refreshGrant(ctx, provider, &grant)
	if err != nil {
		log.Printf("❌ Token refresh failed for %s on %s: %v", userIdentity, providerID, err)
		return "", ErrNotAuthorized
	}
	return newToken, nil
}

// refreshGrant performs the refresh exchange, retrying once on a transient
// failure, and persists the rotated grant.
func (b *Broker) refreshGrant(ctx context.Context, provider *models.OAuthProvider, grant *models.OAuthGrant) (string, error) {
	cfg := oauthConfig(provider, "")
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: grant.RefreshToken})

	token, err := source.Token()
	if err != nil && !isPermanentRefreshError(err) {
		log.Printf("⏳ Transient refresh failure on %s, retrying once: %v", provider.ID, err)
		token, err = source.Token()
	}
	if err != nil {
		return "", err
	}

	grant.AccessToken = token.AccessToken
	grant.ExpiresAt = token.Expiry
	// Persist rotated refresh token if provided (RFC 6749 compliance)
	if token.RefreshToken != "" && token.RefreshToken != grant.RefreshToken {
		grant.RefreshToken = token.RefreshToken
	}
	if err := b.saveGrant(grant); err != nil {
		return "", err
	}

	log.Printf("🔄 Refreshed token for %s on %s (expires %s)",
		grant.UserIdentity, provider.ID, grant.ExpiresAt.Format(time.RFC3339))
	return grant.AccessToken, nil
}

// RevokeAuthorization deletes the grant and makes a best-effort call to the
// provider's revoke endpoint. The read-delete runs under the grant key lock
// so an in-flight refresh cannot resurrect the grant after the delete.
func (b *Broker) RevokeAuthorization(providerID, userIdentity string) error {
	lock := b.keyLock(grantKey(providerID, userIdentity))
	lock.Lock()
	grant, err := b.deleteGrant(providerID, userIdentity)
	lock.Unlock()
	if err != nil {
		return err
	}

	if provider, perr := b.provider(providerID); perr == nil && provider.RevokeURL != "" {
		revokeUpstream(provider, grant.AccessToken)
	}
	return nil
}

func (b *Broker) deleteGrant(providerID, userIdentity string) (*models.OAuthGrant, error) {
	var grant models.OAuthGrant
	err := b.db.Where("provider_id = ? AND user_identity = ?", providerID, userIdentity).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, err
	}

	res := b.db.Where("provider_id = ? AND user_identity = ?", providerID, userIdentity).
		Delete(&models.OAuthGrant{})
	if res.Error != nil {
		return nil, res.Error
	}
	return &grant, nil
}

// SweepExpiredRequests deletes authorization requests past their TTL. An
// expired request can also never be completed (the callback re-checks the
// TTL), so the sweep only keeps the table bounded.
func (b *Broker) SweepExpiredRequests() (int64, error) {
	cutoff := time.Now().Add(-b.stateTTL)
	res := b.db.Where("created_at < ?", cutoff).Delete(&models.AuthorizationRequest{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Swept %d expired authorization request(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (b *Broker) provider(id string) (*models.OAuthProvider, error) {
	var provider models.OAuthProvider
	err := b.db.Where("id = ?", id).First(&provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (b *Broker) saveGrant(grant *models.OAuthGrant) error {
	return b.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_id"}, {Name: "user_identity"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_at", "granted_at",
		}),
	}).Create(grant).Error
}

func grantKey(providerID, userIdentity string) string {
	return providerID + "\x00" + userIdentity
}

func (b *Broker) keyLock(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		b.keyLocks[key] = lock
	}
	return lock
}

func oauthConfig(provider *models.OAuthProvider, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(provider.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.AuthorizeURL,
			TokenURL: provider.TokenURL,
		},
	}
}

func newStateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func revokeUpstream(provider *models.OAuthProvider, accessToken string) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.PostForm(provider.RevokeURL, url.Values{"token": {accessToken}})
	if err != nil {
		log.Printf("⚠️ Best-effort revoke call to %s failed: %v", provider.ID, err)
		return
	}
	resp.Body.Close()
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
