package resources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/guarzo/storefront/modules/api"
)

// ErrMissingID is returned before any call that addresses a document
// without an id.
var ErrMissingID = errors.New("resource id is required")

// Resource is typed CRUD over one collection endpoint. Bodies are passed
// through unchanged; validation is the server's job.
type Resource[T any] struct {
	client api.Requester
	path   string
}

// NewResource binds T to the collection at path (e.g. "/products").
func NewResource[T any](client api.Requester, path string) *Resource[T] {
	return &Resource[T]{
		client: client,
		path:   "/" + strings.Trim(path, "/"),
	}
}

// Path is the collection path this resource talks to.
func (r *Resource[T]) Path() string {
	return r.path
}

func (r *Resource[T]) item(id string, sub ...string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrMissingID
	}
	p := r.path + "/" + url.PathEscape(id)
	for _, s := range sub {
		p += "/" + s
	}
	return p, nil
}

// List returns every document matching query (nil for all).
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	var opts []api.RequestOption
	if len(query) > 0 {
		opts = append(opts, api.WithQuery(query))
	}
	env, err := r.client.Get(ctx, r.path, opts...)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := env.DecodeData(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", r.path, err)
	}
	return out, nil
}

func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	p, err := r.item(id)
	if err != nil {
		return nil, err
	}
	env, err := r.client.Get(ctx, p)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](env.DecodeData, p)
}

func (r *Resource[T]) Create(ctx context.Context, v T) (*T, error) {
	env, err := r.client.Post(ctx, r.path, v)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](env.DecodeData, r.path)
}

// Update replaces the document (PUT).
func (r *Resource[T]) Update(ctx context.Context, id string, v T) (*T, error) {
	p, err := r.item(id)
	if err != nil {
		return nil, err
	}
	env, err := r.client.Put(ctx, p, v)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](env.DecodeData, p)
}

// Patch sends only the given fields (PATCH).
func (r *Resource[T]) Patch(ctx context.Context, id string, fields map[string]interface{}) (*T, error) {
	p, err := r.item(id)
	if err != nil {
		return nil, err
	}
	return r.patchPath(ctx, p, fields)
}

func (r *Resource[T]) patchPath(ctx context.Context, p string, body interface{}) (*T, error) {
	env, err := r.client.Patch(ctx, p, body)
	if err != nil {
		return nil, err
	}
	return decodeOne[T](env.DecodeData, p)
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	p, err := r.item(id)
	if err != nil {
		return err
	}
	_, err = r.client.Delete(ctx, p)
	return err
}

func decodeOne[T any](decode func(interface{}) error, p string) (*T, error) {
	var out T
	if err := decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return &out, nil
}
