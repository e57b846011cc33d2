package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
	"github.com/guarzo/storefront/modules/api"
)

// ErrMissingCredentials is returned by Login before anything is sent.
var ErrMissingCredentials = errors.New("email and password are required")

// AuthService manages the admin session on top of the request client.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*model.Identity, error)
	// Logout revokes the refresh token server-side and clears the local
	// session. The local session is cleared even when the server call fails.
	Logout(ctx context.Context) error
	// LogoutAll revokes every session of the admin, then clears locally.
	LogoutAll(ctx context.Context) error
	CurrentIdentity(ctx context.Context) (*model.Identity, error)
	IsAuthenticated(ctx context.Context) (bool, error)
}

type authService struct {
	client api.Requester
	store  common.TokenStore
	logger common.Logger
}

// NewAuthService constructs an AuthService. logger may be nil.
func NewAuthService(client api.Requester, store common.TokenStore, logger common.Logger) AuthService {
	if logger == nil {
		logger = common.NopLogger()
	}
	return &authService{
		client: client,
		store:  store,
		logger: logger,
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	env, err := s.client.Post(ctx, api.LoginPath, model.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	resp, err := decodeLogin(env)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    "Bearer",
	}
	if !common.ValidPair(token) {
		return nil, fmt.Errorf("login response: %w", common.ErrIncompleteToken)
	}

	identity := resp.Admin
	if err := s.store.SetSession(ctx, token, &identity); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Infof("auth: logged in as %s", identity.Email)
	return &identity, nil
}

// decodeLogin accepts the pair at the top level or inside "data".
func decodeLogin(env *model.Envelope) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := env.DecodeBody(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if resp.AccessToken == "" {
		if err := env.DecodeData(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode login response: %w", err)
		}
	}
	return &resp, nil
}

func (s *authService) Logout(ctx context.Context) error {
	token, err := s.store.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var callErr error
	if token != nil {
		_, callErr = s.client.Post(ctx, api.LogoutPath, model.RefreshRequest{RefreshToken: token.RefreshToken})
		if callErr != nil {
			s.logger.Warnf("auth: server logout failed: %v", callErr)
		}
	}
	return s.clear(ctx, callErr)
}

func (s *authService) LogoutAll(ctx context.Context) error {
	_, callErr := s.client.Post(ctx, api.LogoutAllPath, nil)
	if callErr != nil {
		s.logger.Warnf("auth: server logout-all failed: %v", callErr)
	}
	return s.clear(ctx, callErr)
}

func (s *authService) clear(ctx context.Context, callErr error) error {
	if err := s.store.Clear(ctx); err != nil {
		return errors.Join(callErr, fmt.Errorf("failed to clear session: %w", err))
	}
	s.logger.Infof("auth: logged out")
	return callErr
}

func (s *authService) CurrentIdentity(ctx context.Context) (*model.Identity, error) {
	_, identity, err := s.store.Session(ctx)
	return identity, err
}

func (s *authService) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.store.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}
