package common

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/guarzo/storefront/common/model"
)

// ErrIncompleteToken is returned when a token pair is missing one half.
// Access and refresh tokens are only ever stored together.
var ErrIncompleteToken = errors.New("token pair must carry both an access and a refresh token")

// TokenStore holds the current token pair and the cached identity.
//
// It is shared by every request. Only login, refresh and logout write to it.
type TokenStore interface {
	// Token returns the stored pair, or nil when nobody is logged in.
	Token(ctx context.Context) (*oauth2.Token, error)
	// SetToken replaces the access and refresh token in one write.
	SetToken(ctx context.Context, token *oauth2.Token) error
	// Identity returns the cached identity, or nil when absent.
	Identity(ctx context.Context) (*model.Identity, error)
	// Session returns the pair and the identity read together. token is
	// nil when nobody is logged in.
	Session(ctx context.Context) (token *oauth2.Token, identity *model.Identity, err error)
	// SetSession stores a token pair together with the identity (login).
	SetSession(ctx context.Context, token *oauth2.Token, identity *model.Identity) error
	// Clear removes both tokens and the identity in one write.
	Clear(ctx context.Context) error
}

// ValidPair reports whether token carries both halves of the pair.
func ValidPair(token *oauth2.Token) bool {
	return token != nil && token.AccessToken != "" && token.RefreshToken != ""
}

// RedactToken masks a credential for logs, keeping a short prefix so two
// tokens can still be told apart.
func RedactToken(tok string) string {
	if len(tok) <= 6 {
		return "[REDACTED]"
	}
	return tok[:6] + "…[REDACTED]"
}
