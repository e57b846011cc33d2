package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/guarzo/storefront/modules/api"
)

func TestMessage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"transport", &api.TransportError{Message: "network error: unable to reach the server", Err: cause}, "network error: unable to reach the server"},
		{"auth", &api.AuthFailedError{Message: "session expired, please log in again"}, "session expired, please log in again"},
		{"application", &api.ApplicationError{StatusCode: 404, Message: "Product not found"}, "Product not found"},
		{"request", &api.RequestError{Message: "invalid request path"}, "invalid request path"},
		{"wrapped", fmt.Errorf("load products: %w", &api.ApplicationError{StatusCode: 409, Message: "Duplicate"}), "Duplicate"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.Message(tt.err))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("timeout")
	te := &api.TransportError{Message: "network error", Err: cause}
	assert.True(t, api.IsTransport(te))
	assert.False(t, api.IsAuthFailed(te))
	assert.ErrorIs(t, te, cause)
	assert.Equal(t, "network error: timeout", te.Error())

	ae := &api.AuthFailedError{Message: "session expired"}
	assert.True(t, api.IsAuthFailed(fmt.Errorf("wrap: %w", ae)))
	assert.Equal(t, "session expired", ae.Error())

	app := &api.ApplicationError{StatusCode: 422, Message: "Invalid price"}
	assert.Equal(t, 422, api.StatusCode(app))
	assert.Equal(t, 0, api.StatusCode(te))
	assert.Equal(t, "Invalid price (status 422)", app.Error())
}
