package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-cinema-auth/storage"
)

// TokenStore keeps the token pair in the durable shared area.
type TokenStore struct {
	store      storage.Store
	accessKey  string
	refreshKey string
}

// NewTokenStore returns a token store using the configured keys.
func NewTokenStore(store storage.Store, cfg Config) *TokenStore {
	return &TokenStore{
		store:      store,
		accessKey:  cfg.GetAccessTokenKey(),
		refreshKey: cfg.GetRefreshTokenKey(),
	}
}

// Load returns the persisted pair. ok is false when no access token exists.
func (t *TokenStore) Load(ctx context.Context) (pair TokenPair, ok bool, err error) {
	access, ok, err := t.store.Get(ctx, t.accessKey)
	if err != nil || !ok || access == "" {
		return TokenPair{}, false, err
	}

	refresh, _, err := t.store.Get(ctx, t.refreshKey)
	if err != nil {
		return TokenPair{}, false, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, true, nil
}

// RefreshToken returns the persisted refresh token, if any.
func (t *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	refresh, _, err := t.store.Get(ctx, t.refreshKey)
	return refresh, err
}

// Save persists the pair. An empty refresh token keeps the stored one, since
// some refresh endpoints only rotate the access token.
func (t *TokenStore) Save(ctx context.Context, pair TokenPair) error {
	if err := t.store.Set(ctx, t.accessKey, pair.AccessToken); err != nil {
		return err
	}
	if pair.RefreshToken == "" {
		return nil
	}
	return t.store.Set(ctx, t.refreshKey, pair.RefreshToken)
}

// Clear removes only the sensitive auth keys.
func (t *TokenStore) Clear(ctx context.Context) error {
	if err := t.store.Remove(ctx, t.accessKey); err != nil {
		return err
	}
	return t.store.Remove(ctx, t.refreshKey)
}

// IsTokenKey reports whether key is one of the auth token keys.
func (t *TokenStore) IsTokenKey(key string) bool {
	return key == t.accessKey || key == t.refreshKey
}

// TokenExpiry reads the exp claim without verifying the signature. The
// client never holds the signing key; the server still validates every
// request. ok is false for opaque tokens or tokens without exp.
func TokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenExpired reports whether raw carries an exp claim at or before now.
func TokenExpired(raw string, now time.Time) bool {
	exp, ok := TokenExpiry(raw)
	if !ok {
		return false
	}
	return !now.Before(exp)
}
