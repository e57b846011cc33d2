package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/storefront/common/model"
	"github.com/guarzo/storefront/modules/apitest"
)

type cli struct {
	t      *testing.T
	config string
}

func newCLI(t *testing.T, srv *apitest.Server) *cli {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
env: "local"
api:
  base_url: %q
  timeout: "5s"
store:
  backend: "file"
  path: %q
`, srv.BaseURL(), filepath.Join(dir, "session.json"))

	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cfg), 0o600))
	return &cli{t: t, config: p}
}

func (c *cli) run(stdin string, args ...string) (string, string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", c.config}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestCLI_Session(t *testing.T) {
	srv := apitest.New(t)
	srv.AddAdmin("Ada", "a@b.com", "x", model.RoleAdmin)
	srv.Seed("products", model.Product{Name: "Widget", Price: 10})
	c := newCLI(t, srv)

	out, _, err := c.run("x\n", "login", "-email", "a@b.com")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Ada <a@b.com> (admin)")

	out, _, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "a@b.com"`)

	out, _, err = c.run("", "get", "/products")
	require.NoError(t, err)
	assert.Contains(t, out, `"success": true`)
	assert.Contains(t, out, "Widget")

	out, _, err = c.run("", "post", "/faqs", `{"question":"Q?","answer":"A"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"question": "Q?"`)

	out, _, err = c.run(`{"question":"Q2?"}`, "post", "/faqs", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Q2?")

	out, _, err = c.run("", "get", "/faqs", "-q", "question=Q2?")
	require.NoError(t, err)
	assert.NotContains(t, out, `"Q?"`)

	// the session survives across invocations and refreshes transparently
	srv.ExpireAccessTokens()
	_, _, err = c.run("", "get", "/products")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.RefreshCalls())

	_, _, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Zero(t, srv.LiveSessions())

	_, _, err = c.run("", "whoami")
	assert.EqualError(t, err, "not logged in")
}

func TestCLI_ForcedLogout(t *testing.T) {
	srv := apitest.New(t)
	srv.AddAdmin("Ada", "a@b.com", "x", model.RoleAdmin)
	c := newCLI(t, srv)

	_, _, err := c.run("", "login", "-email", "a@b.com", "-password", "x")
	require.NoError(t, err)

	srv.ExpireAccessTokens()
	srv.RevokeRefreshTokens()

	_, stderr, err := c.run("", "get", "/orders")
	assert.ErrorIs(t, err, errReported)
	assert.Equal(t, 1, strings.Count(stderr, "session expired, please log in again"))

	_, _, err = c.run("", "whoami")
	assert.EqualError(t, err, "not logged in")
}

func TestCLI_Errors(t *testing.T) {
	srv := apitest.New(t)
	srv.AddAdmin("Ada", "a@b.com", "x", model.RoleAdmin)
	c := newCLI(t, srv)

	_, _, err := c.run("", "login", "-email", "a@b.com", "-password", "nope")
	assert.EqualError(t, err, "Invalid credentials")

	_, _, err = c.run("", "frobnicate")
	assert.EqualError(t, err, `unknown command "frobnicate"`)

	_, _, err = c.run("")
	assert.EqualError(t, err, "missing command")

	_, _, err = c.run("", "get")
	assert.EqualError(t, err, "get needs a path")

	_, _, err = c.run("", "post", "/faqs", "{broken")
	assert.EqualError(t, err, "body is not valid JSON")

	_, _, err = c.run("", "get", "/faqs", "-q", "novalue")
	assert.Error(t, err)
}
