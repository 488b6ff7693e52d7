package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionguard/internal/clock"
	"sessionguard/internal/storage"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestTokenStore(t *testing.T) (*TokenStore, storage.Store, *clock.Fake) {
	t.Helper()
	store := storage.NewMemoryStore()
	clk := clock.NewFake(epoch)
	ts, err := NewTokenStore(context.Background(), store, clk)
	require.NoError(t, err)
	return ts, store, clk
}

func TestTokenStore_SetGetPersists(t *testing.T) {
	ctx := context.Background()
	ts, store, clk := newTestTokenStore(t)

	_, ok := ts.Get()
	assert.False(t, ok)
	assert.False(t, ts.IsValid(clk.Now))

	set := TokenSet{AccessToken: "A1", IDToken: "I1", ExpiresAt: epoch.Add(time.Hour)}
	require.NoError(t, ts.Set(ctx, set))

	got, ok := ts.Get()
	require.True(t, ok)
	assert.Equal(t, "A1", got.AccessToken)
	assert.True(t, ts.IsValid(clk.Now))

	value, ok, err := store.Get(ctx, storage.KeyTokenExpiresAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1735736400000", value)

	reloaded, err := NewTokenStore(ctx, store, clk)
	require.NoError(t, err)
	got, ok = reloaded.Get()
	require.True(t, ok)
	assert.Equal(t, "I1", got.IDToken)
	assert.True(t, got.ExpiresAt.Equal(set.ExpiresAt))
}

func TestTokenStore_RejectsExpiredSet(t *testing.T) {
	ts, _, _ := newTestTokenStore(t)

	err := ts.Set(context.Background(), TokenSet{AccessToken: "A1", ExpiresAt: epoch})
	assert.ErrorIs(t, err, ErrTokenExpired)

	err = ts.Set(context.Background(), TokenSet{ExpiresAt: epoch.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, ok := ts.Get()
	assert.False(t, ok)
}

func TestTokenStore_ExpiresWithClock(t *testing.T) {
	ts, _, clk := newTestTokenStore(t)
	require.NoError(t, ts.Set(context.Background(), TokenSet{AccessToken: "A1", ExpiresAt: epoch.Add(time.Minute)}))

	clk.Advance(59 * time.Second)
	assert.True(t, ts.IsValid(clk.Now))

	clk.Advance(time.Second)
	assert.False(t, ts.IsValid(clk.Now))
}

func TestTokenStore_Clear(t *testing.T) {
	ctx := context.Background()
	ts, store, clk := newTestTokenStore(t)
	require.NoError(t, ts.Set(ctx, TokenSet{AccessToken: "A1", IDToken: "I1", ExpiresAt: epoch.Add(time.Hour)}))

	require.NoError(t, ts.Clear(ctx))
	assert.False(t, ts.IsValid(clk.Now))

	for _, key := range []string{storage.KeyAccessToken, storage.KeyIDToken, storage.KeyTokenExpiresAt} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

func TestTokenStore_ReloadIgnoresMalformedExpiry(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SetMany(ctx, map[string]string{
		storage.KeyAccessToken:    "A1",
		storage.KeyTokenExpiresAt: "soon",
	}))

	ts, err := NewTokenStore(ctx, store, clock.NewFake(epoch))
	require.NoError(t, err)
	_, ok := ts.Get()
	assert.False(t, ok)
}

func TestTokenSet_OAuth2Token(t *testing.T) {
	set := TokenSet{AccessToken: "A1", IDToken: "I1", ExpiresAt: epoch}
	token := set.OAuth2Token()

	assert.Equal(t, "A1", token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.Equal(t, "I1", token.Extra("id_token"))
	assert.Nil(t, TokenSet{AccessToken: "A1"}.OAuth2Token().Extra("id_token"))
}
