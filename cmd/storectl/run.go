package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/config"
	"github.com/guarzo/storefront/modules/api"
	"github.com/guarzo/storefront/modules/auth"
)

const usage = `usage: storectl [-config path] [-v] <command> [args]

commands:
  login -email EMAIL [-password PASSWORD]   password is read from stdin when omitted
  logout                                    end this session
  logout-all                                end every session of this admin
  whoami                                    show the cached identity
  get PATH [-q key=value ...]
  post|put|patch PATH [BODY|-]              BODY is JSON; - reads it from stdin
  delete PATH
`

// errReported means the user has already been told what went wrong.
var errReported = errors.New("reported")

// app is everything a command needs.
type app struct {
	client *api.Client
	auth   auth.AuthService
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("storectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to config file")
	verbose := fs.Bool("v", false, "log to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := common.NopLogger()
	if *verbose {
		zl, err := common.NewLogger(cfg.Env)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		defer func() { _ = zl.Sync() }()
		logger = zl.Sugar().With(zap.String("env", cfg.Env))
	}

	kv, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	store := auth.NewTokenStore(kv)

	hc := common.NewHttpClient(cfg.API.UserAgent, &http.Client{}, cfg.API.Timeout)
	defer hc.CloseIdleConnections()

	client, err := api.NewClient(cfg.API.BaseURL, hc, store,
		api.WithLogger(logger),
		api.WithObserver(api.NewPrometheusObserver()),
		api.WithRefreshTimeout(cfg.API.RefreshTimeout),
		api.WithLoginRedirect(cfg.API.LoginPath),
	)
	if err != nil {
		return err
	}
	stop := client.OnLogout(func(ev api.LogoutEvent) {
		fmt.Fprintln(stderr, "session expired, please log in again")
		logger.Debugf("storectl: session ended at %s: %v", ev.At, ev.Reason)
	})
	defer stop()

	a := &app{
		client: client,
		auth:   auth.NewAuthService(client, store, logger),
		stdin:  stdin,
		stdout: stdout,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.auth.Logout(ctx)
	case "logout-all":
		return a.auth.LogoutAll(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "get", "delete":
		return a.call(ctx, strings.ToUpper(cmd), rest, false)
	case "post", "put", "patch":
		return a.call(ctx, strings.ToUpper(cmd), rest, true)
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "admin email")
	password := fs.String("password", "", "admin password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	id, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return userError(err)
	}
	fmt.Fprintf(a.stdout, "logged in as %s <%s> (%s)\n", id.Name, id.Email, id.Role)
	return nil
}

// userError keeps only the message; forced logouts were already printed
// by the OnLogout subscriber.
func userError(err error) error {
	if api.IsAuthFailed(err) {
		return errReported
	}
	return errors.New(api.Message(err))
}

func (a *app) whoami(ctx context.Context) error {
	id, err := a.auth.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		return errors.New("not logged in")
	}
	return a.print(id)
}

type queryFlags url.Values

func (q queryFlags) String() string { return url.Values(q).Encode() }

func (q queryFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("query must be key=value, got %q", s)
	}
	url.Values(q).Add(k, v)
	return nil
}

func (a *app) call(ctx context.Context, method string, args []string, withBody bool) error {
	if len(args) == 0 {
		return fmt.Errorf("%s needs a path", strings.ToLower(method))
	}
	path, args := args[0], args[1:]

	fs := flag.NewFlagSet(strings.ToLower(method), flag.ContinueOnError)
	query := queryFlags{}
	fs.Var(query, "q", "query parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := api.Request{Method: method, Path: path, Query: url.Values(query)}
	if withBody {
		body, err := a.body(fs.Args())
		if err != nil {
			return err
		}
		req.Body = body
	}

	env, err := a.client.Send(ctx, req)
	if err != nil {
		return userError(err)
	}
	return a.print(env)
}

// body returns the request body as raw JSON, so it is sent exactly as typed.
func (a *app) body(args []string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case len(args) == 0:
		return nil, nil
	case args[0] == "-":
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		raw = b
	default:
		raw = []byte(args[0])
	}
	if !json.Valid(raw) {
		return nil, errors.New("body is not valid JSON")
	}
	return raw, nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
