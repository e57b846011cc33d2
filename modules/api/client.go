package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
)

// Remote API auth endpoints.
const (
	LoginPath     = "/auth/login"
	RefreshPath   = "/auth/refresh-token"
	LogoutPath    = "/auth/logout"
	LogoutAllPath = "/auth/logout-all"
)

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultRedirect       = "/admin/login"
	headerRequestID       = "X-Request-Id"
)

// Requester is what the rest of the application calls. Every method
// resolves to an Envelope or to one of the errors in errors.go.
type Requester interface {
	Get(ctx context.Context, path string, opts ...RequestOption) (*model.Envelope, error)
	Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error)
	Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error)
	Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error)
	Delete(ctx context.Context, path string, opts ...RequestOption) (*model.Envelope, error)
}

// Request describes one logical call. Path is relative to the base URL.
// Body may be nil, []byte (sent as-is), an io.Reader (read once) or any
// JSON-serializable value.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Header http.Header
}

// RequestOption adjusts a Request built by the verb helpers.
type RequestOption func(*Request)

// WithHeader sets a header on the request. A Content-Type set here wins
// over the JSON default.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Set(key, value)
	}
}

// WithQuery merges params into the query string.
func WithQuery(params url.Values) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = make(url.Values)
		}
		for k, vs := range params {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// Client is the authenticated request client. It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     common.HttpClient
	store          common.TokenStore
	authClient     common.AuthClient
	logger         common.Logger
	observer       Observer
	refreshTimeout time.Duration
	redirectTo     string
	exempt         map[string]bool

	status  *Status
	logouts logoutHub
	flight  singleflight.Group
}

var _ Requester = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithAuthClient replaces the built-in refresh call.
func WithAuthClient(a common.AuthClient) Option {
	return func(c *Client) { c.authClient = a }
}

func WithLogger(l common.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithRefreshTimeout bounds the refresh call independently of callers'
// contexts.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.refreshTimeout = d }
}

// WithLoginRedirect sets LogoutEvent.RedirectTo.
func WithLoginRedirect(path string) Option {
	return func(c *Client) { c.redirectTo = path }
}

// WithExemptPaths adds paths whose 401 is returned as-is instead of
// starting a refresh. The refresh and login endpoints are always exempt.
func WithExemptPaths(paths ...string) Option {
	return func(c *Client) {
		for _, p := range paths {
			c.exempt[normalizePath(p)] = true
		}
	}
}

// NewClient creates a Client sending to baseURL through httpClient, reading
// and writing tokens in store.
func NewClient(baseURL string, httpClient common.HttpClient, store common.TokenStore, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	c := &Client{
		baseURL:        strings.TrimRight(u.String(), "/"),
		httpClient:     httpClient,
		store:          store,
		logger:         common.NopLogger(),
		observer:       nopObserver{},
		refreshTimeout: defaultRefreshTimeout,
		redirectTo:     defaultRedirect,
		exempt: map[string]bool{
			RefreshPath: true,
			LoginPath:   true,
		},
		status: newStatus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.authClient == nil {
		c.authClient = &tokenRefresher{client: c}
	}
	return c, nil
}

// Status exposes the loading/error state.
func (c *Client) Status() *Status {
	return c.status
}

// OnLogout subscribes fn to forced-logout events. The returned func
// unsubscribes.
func (c *Client) OnLogout(fn func(LogoutEvent)) (cancel func()) {
	return c.logouts.subscribe(fn)
}

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*model.Envelope, error) {
	return c.Send(ctx, buildRequest(http.MethodGet, path, nil, opts))
}

func (c *Client) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error) {
	return c.Send(ctx, buildRequest(http.MethodPost, path, body, opts))
}

func (c *Client) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error) {
	return c.Send(ctx, buildRequest(http.MethodPut, path, body, opts))
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*model.Envelope, error) {
	return c.Send(ctx, buildRequest(http.MethodPatch, path, body, opts))
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*model.Envelope, error) {
	return c.Send(ctx, buildRequest(http.MethodDelete, path, nil, opts))
}

func buildRequest(method, path string, body interface{}, opts []RequestOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// preparedRequest is a Request with its body already encoded. The same
// bytes are used for the first attempt and for the retry.
type preparedRequest struct {
	method    string
	path      string
	url       string
	body      []byte
	header    http.Header
	requestID string
}

type rawResponse struct {
	status int
	body   []byte
}

// Send performs one logical call: attach the token, send, and on a 401
// recover the session and resend once.
func (c *Client) Send(ctx context.Context, r Request) (env *model.Envelope, err error) {
	c.status.begin()
	defer func() { c.status.end(err) }()

	p, err := c.prepare(r)
	if err != nil {
		return nil, err
	}

	token, err := c.store.Token(ctx)
	if err != nil {
		return nil, &RequestError{Message: "token store unavailable", Err: err}
	}
	sent := ""
	if token != nil {
		sent = token.AccessToken
	}

	resp, err := c.execute(ctx, p, sent)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized && !c.exempt[p.path] {
		c.logger.Debugf("api: 401 on %s %s [%s], recovering session", p.method, p.path, p.requestID)
		fresh, err := c.recoverSession(ctx, sent)
		if err != nil {
			return nil, err
		}
		c.observer.RecordRetry()
		resp, err = c.execute(ctx, p, fresh.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	return decodeResponse(resp)
}

func (c *Client) prepare(r Request) (*preparedRequest, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	full, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(r.Path, "/"))
	if err != nil {
		return nil, &RequestError{Message: "invalid request path", Err: err}
	}
	if len(r.Query) > 0 {
		q := full.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		full.RawQuery = q.Encode()
	}

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, &RequestError{Message: "request body could not be encoded", Err: err}
	}

	return &preparedRequest{
		method:    r.Method,
		path:      normalizePath(r.Path),
		url:       full.String(),
		body:      body,
		header:    r.Header.Clone(),
		requestID: uuid.NewString(),
	}, nil
}

// execute sends p once with the given access token ("" = unauthenticated).
func (c *Client) execute(ctx context.Context, p *preparedRequest, accessToken string) (*rawResponse, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, &RequestError{Message: "request could not be built", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if p.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range p.header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(headerRequestID, p.requestID)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Del("Authorization")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest(p.method, 0, time.Since(start))
		c.logger.Warnf("api: %s %s [%s] failed: %v", p.method, p.path, p.requestID, err)
		return nil, &TransportError{Message: msgTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.observer.ObserveRequest(p.method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &TransportError{Message: msgUnreadable, Err: err}
	}
	c.logger.Debugf("api: %s %s [%s] -> %d", p.method, p.path, p.requestID, resp.StatusCode)

	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

// decodeResponse turns a raw response into an Envelope or an error.
func decodeResponse(resp *rawResponse) (*model.Envelope, error) {
	if resp.status < 200 || resp.status > 299 {
		msg := fallbackMessage(resp.status)
		var eb model.ErrorBody
		if err := json.Unmarshal(resp.body, &eb); err == nil && eb.Message != "" {
			msg = eb.Message
		}
		return nil, &ApplicationError{StatusCode: resp.status, Message: msg, Body: resp.body}
	}

	if len(bytes.TrimSpace(resp.body)) == 0 {
		return &model.Envelope{Success: true}, nil
	}
	if !json.Valid(resp.body) {
		return nil, &TransportError{Message: msgUnreadable, Err: fmt.Errorf("body is not JSON")}
	}

	var shape struct {
		Success *bool           `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	env := &model.Envelope{Success: true, Raw: resp.body}
	if err := json.Unmarshal(resp.body, &shape); err != nil {
		// valid JSON but not an object (e.g. a bare list): treat it as data
		env.Data = resp.body
		return env, nil
	}
	if shape.Success != nil {
		env.Success = *shape.Success
	}
	env.Message = shape.Message
	env.Data = shape.Data
	return env, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

func normalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return "/" + strings.TrimLeft(p, "/")
}
