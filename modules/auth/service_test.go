package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
	"github.com/guarzo/storefront/modules/api"
	"github.com/guarzo/storefront/modules/apitest"
	"github.com/guarzo/storefront/modules/auth"
	"github.com/guarzo/storefront/modules/kvstore"
)

type harness struct {
	srv    *apitest.Server
	client *api.Client
	store  common.TokenStore
	svc    auth.AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := apitest.New(t)
	srv.AddAdmin("Ada", "a@b.com", "x", model.RoleAdmin)

	store := auth.NewTokenStore(kvstore.NewMemoryStore())
	client, err := api.NewClient(srv.BaseURL(), common.NewHttpClient("storefront-test", nil, 0), store)
	require.NoError(t, err)

	return &harness{
		srv:    srv,
		client: client,
		store:  store,
		svc:    auth.NewAuthService(client, store, nil),
	}
}

func TestLogin_StoresPairAndIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.Name)
	assert.Equal(t, model.RoleAdmin, id.Role)

	ok, err := h.svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	cur, err := h.svc.CurrentIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", cur.Email)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, "a@b.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", api.Message(err))
	assert.Zero(t, h.srv.RefreshCalls(), "a failed login never refreshes")

	ok, _ := h.svc.IsAuthenticated(ctx)
	assert.False(t, ok)

	_, err = h.svc.Login(ctx, " ", "")
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
}

func TestSession_RefreshRotatesPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.srv.Seed("products", model.Product{Name: "Widget", Price: 10})

	_, err := h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	first, _ := h.store.Token(ctx)

	h.srv.ExpireAccessTokens()
	env, err := h.client.Get(ctx, "/products")
	require.NoError(t, err)
	var products []model.Product
	require.NoError(t, env.DecodeData(&products))
	require.Len(t, products, 1)

	second, _ := h.store.Token(ctx)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, h.srv.RefreshCalls())
	assert.Equal(t, 2, h.srv.Hits(http.MethodGet, "/api/products"))

	// the redeemed refresh token is gone server-side
	assert.Equal(t, 1, h.srv.LiveSessions())
}

func TestSession_RevokedRefreshLogsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var events []api.LogoutEvent
	h.client.OnLogout(func(ev api.LogoutEvent) { events = append(events, ev) })

	_, err := h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	h.srv.ExpireAccessTokens()
	h.srv.RevokeRefreshTokens()

	_, err = h.client.Get(ctx, "/orders")
	require.True(t, api.IsAuthFailed(err))
	assert.Len(t, events, 1)

	ok, _ := h.svc.IsAuthenticated(ctx)
	assert.False(t, ok)
	id, err := h.store.Identity(ctx)
	require.NoError(t, err)
	assert.Nil(t, id, "identity is cleared with the tokens")
}

func TestLogout_RevokesAndClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	require.Equal(t, 1, h.srv.LiveSessions())

	require.NoError(t, h.svc.Logout(ctx))
	assert.Zero(t, h.srv.LiveSessions())
	ok, _ := h.svc.IsAuthenticated(ctx)
	assert.False(t, ok)

	// logging out with no session is a no-op
	require.NoError(t, h.svc.Logout(ctx))
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	h.srv.Close()

	err = h.svc.Logout(ctx)
	require.Error(t, err)
	assert.True(t, api.IsTransport(err))
	ok, _ := h.svc.IsAuthenticated(ctx)
	assert.False(t, ok)
}

func TestLogoutAll_EndsEverySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a second device
	_, _, err := h.srv.IssueTokens("a@b.com")
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	require.Equal(t, 2, h.srv.LiveSessions())

	require.NoError(t, h.svc.LogoutAll(ctx))
	assert.Zero(t, h.srv.LiveSessions())
	ok, _ := h.svc.IsAuthenticated(ctx)
	assert.False(t, ok)
}

func TestCurrentIdentity_NoSession(t *testing.T) {
	h := newHarness(t)
	id, err := h.svc.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
}
