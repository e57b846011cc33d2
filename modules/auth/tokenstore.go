package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
)

// Storage keys. They match what the storefront's browser session keeps.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyIdentity     = "admin"
)

var _ common.TokenStore = (*kvTokenStore)(nil)

type kvTokenStore struct {
	kv common.KVStore
}

// NewTokenStore returns a TokenStore on top of any KVStore.
func NewTokenStore(kv common.KVStore) common.TokenStore {
	return &kvTokenStore{kv: kv}
}

// Token returns nil unless both halves of the pair are present. A lone
// access or refresh token is treated as no session at all.
func (s *kvTokenStore) Token(ctx context.Context) (*oauth2.Token, error) {
	vals, err := s.kv.GetMulti(ctx, KeyAccessToken, KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return pairFrom(vals), nil
}

func (s *kvTokenStore) SetToken(ctx context.Context, token *oauth2.Token) error {
	if !common.ValidPair(token) {
		return common.ErrIncompleteToken
	}
	return s.kv.SetMulti(ctx, pairEntries(token))
}

func (s *kvTokenStore) Identity(ctx context.Context) (*model.Identity, error) {
	raw, ok, err := s.kv.Get(ctx, KeyIdentity)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return decodeIdentity(raw)
}

// Session reads the pair and the identity in one snapshot, so a concurrent
// login or logout is seen entirely or not at all.
func (s *kvTokenStore) Session(ctx context.Context) (*oauth2.Token, *model.Identity, error) {
	vals, err := s.kv.GetMulti(ctx, KeyAccessToken, KeyRefreshToken, KeyIdentity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read session: %w", err)
	}
	token := pairFrom(vals)
	if token == nil {
		return nil, nil, nil
	}
	identity, err := decodeIdentity(vals[KeyIdentity])
	if err != nil {
		return nil, nil, err
	}
	return token, identity, nil
}

func pairFrom(vals map[string][]byte) *oauth2.Token {
	access, refresh := vals[KeyAccessToken], vals[KeyRefreshToken]
	if len(access) == 0 || len(refresh) == 0 {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		TokenType:    "Bearer",
	}
}

func decodeIdentity(raw []byte) (*model.Identity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var id model.Identity
	if err := model.JSONUnmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	return &id, nil
}

func (s *kvTokenStore) SetSession(ctx context.Context, token *oauth2.Token, identity *model.Identity) error {
	if !common.ValidPair(token) {
		return common.ErrIncompleteToken
	}
	entries := pairEntries(token)
	if identity != nil {
		raw, err := json.Marshal(identity)
		if err != nil {
			return fmt.Errorf("failed to encode identity: %w", err)
		}
		entries[KeyIdentity] = raw
	}
	return s.kv.SetMulti(ctx, entries)
}

func (s *kvTokenStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyIdentity)
}

func pairEntries(token *oauth2.Token) map[string][]byte {
	return map[string][]byte{
		KeyAccessToken:  []byte(token.AccessToken),
		KeyRefreshToken: []byte(token.RefreshToken),
	}
}
