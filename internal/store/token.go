package store

import (
	"context"
	"errors"
	"time"
)

// TokenKey is the setting id holding the bearer token.
const TokenKey = "auralynx_token"

const tokenTimeout = 5 * time.Second

// TokenStore persists the auth token as a setting.
type TokenStore struct {
	store *Store
}

// Tokens returns the token adapter for s.
func (s *Store) Tokens() *TokenStore {
	return &TokenStore{store: s}
}

func (t *TokenStore) LoadToken() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
	defer cancel()
	setting, err := t.store.GetSetting(ctx, TokenKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (t *TokenStore) SaveToken(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
	defer cancel()
	return t.store.SetSetting(ctx, &Setting{ID: TokenKey, Value: token})
}

func (t *TokenStore) ClearToken() error {
	ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
	defer cancel()
	return t.store.DeleteSetting(ctx, TokenKey)
}
