package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-cinema-auth"
	"github.com/goliatone/go-cinema-auth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewShared().Tab()
	tokens := auth.NewTokenStore(durable, auth.DefaultOptions())

	_, ok, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tokens.Save(ctx, auth.TokenPair{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, tokens.Save(ctx, auth.TokenPair{AccessToken: "b"}))

	pair, ok, err := tokens.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, auth.TokenPair{AccessToken: "b", RefreshToken: "r"}, pair)

	require.NoError(t, durable.Set(ctx, "locale", "es"))
	require.NoError(t, tokens.Clear(ctx))

	_, ok, err = tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	locale, ok, err := durable.Get(ctx, "locale")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "es", locale)
}

func TestTokenStore_IsTokenKey(t *testing.T) {
	tokens := auth.NewTokenStore(storage.NewMemory(), auth.DefaultOptions())
	assert.True(t, tokens.IsTokenKey("accessToken"))
	assert.True(t, tokens.IsTokenKey("refreshToken"))
	assert.False(t, tokens.IsTokenKey("has_pending_booking"))
}

func TestTokenExpiry(t *testing.T) {
	exp := testNow.Add(time.Hour).Truncate(time.Second)
	raw := signedToken(t, exp)

	got, ok := auth.TokenExpiry(raw)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	assert.False(t, auth.TokenExpired(raw, testNow))
	assert.True(t, auth.TokenExpired(raw, exp))

	_, ok = auth.TokenExpiry("opaque")
	assert.False(t, ok)
	assert.False(t, auth.TokenExpired("opaque", testNow))
}
