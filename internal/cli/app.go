package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/apperr"
	"github.com/roach88/linkctl/internal/config"
	"github.com/roach88/linkctl/internal/gateway"
	"github.com/roach88/linkctl/internal/session"
	"github.com/roach88/linkctl/internal/store"
)

// app is everything a command needs, wired from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      *OutputFormatter
	store    *store.Store
	session  *session.Manager
	links    *api.LinkClient
	registry *prometheus.Registry
	reauthed bool
}

// withApp opens the app for one command run and closes it afterwards.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
	logger := newLogger(out.GetErrWriter(), opts.Verbose)

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger.Debug("config loaded", "api_url", cfg.APIURL, "db", cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create state directory", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		out:      out,
		store:    st,
		registry: prometheus.NewRegistry(),
	}

	sessionOpts := []session.Option{
		session.WithPersister(session.NewStorePersister(st)),
		session.WithLogger(logger),
		session.WithRefreshTimeout(cfg.Timeout),
	}
	if opts.clock != nil {
		sessionOpts = append(sessionOpts, session.WithClock(opts.clock))
	}
	plain := &http.Client{Timeout: cfg.Timeout}
	a.session = session.New(api.NewAuthClient(cfg.APIURL, plain), sessionOpts...)
	if err := a.session.Load(ctx); err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "failed to restore session", err)
	}

	gw := gateway.New(a.session,
		gateway.WithLogger(logger),
		gateway.WithRegisterer(a.registry),
		gateway.WithReauthFunc(func(context.Context, error) { a.reauthed = true }),
	)
	a.links = api.NewLinkClient(cfg.APIURL, gw.Client(cfg.Timeout),
		api.WithCacheTTL(cfg.CacheTTL),
		api.WithCacheScope(a.session.Identity),
	)
	return a, nil
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{File: opts.ConfigFile})
	if err != nil {
		return nil, err
	}
	if opts.APIURL != "" {
		cfg.APIURL = opts.APIURL
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	return cfg, cfg.Normalize()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func (a *app) close() {
	a.logMetrics()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// logMetrics writes the gateway counters at debug level.
func (a *app) logMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Debug("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		total := 0.0
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		a.logger.Debug("metric", "name", mf.GetName(), "value", total)
	}
}

// fail reports err for op and returns the matching ExitError.
func (a *app) fail(op apperr.Op, err error) error {
	err = report(a.out, op, err)
	if a.reauthed && a.out.Format != "json" {
		fmt.Fprintln(a.out.GetErrWriter(), "Run 'linkctl login' to sign in again.")
	}
	return err
}

func report(out *OutputFormatter, op apperr.Op, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Reported {
			_ = out.Error(errorCode(exitErr.Code), exitErr.Error(), nil)
			exitErr.Reported = true
		}
		return exitErr
	}

	kind := apperr.Classify(err)
	msg := apperr.Message(op, err)

	code := kindCode(kind)
	if kind != apperr.KindTokenLifecycle {
		if c := api.ErrorCode(err); c != "" {
			code = c
		}
	}
	var details any
	if out.Verbose && msg != err.Error() {
		details = err.Error()
	}
	_ = out.Error(code, msg, details)

	exit := &ExitError{Code: ExitFailure, Message: msg, Err: err, Reported: true}
	switch kind {
	case apperr.KindValidation:
		exit.Code = ExitCommandError
	case apperr.KindTokenLifecycle:
		exit.Code = ExitReauth
	}
	return exit
}

func kindCode(k apperr.Kind) string {
	switch k {
	case apperr.KindValidation:
		return "VALIDATION_ERROR"
	case apperr.KindAuth:
		return "AUTH_FAILED"
	case apperr.KindTokenLifecycle:
		return "SESSION_EXPIRED"
	case apperr.KindConflict:
		return "CONFLICT"
	default:
		return "ERROR"
	}
}

func errorCode(exit int) string {
	switch exit {
	case ExitCommandError:
		return "COMMAND_ERROR"
	case ExitReauth:
		return "NOT_LOGGED_IN"
	default:
		return "ERROR"
	}
}

// requireLogin fails with ExitReauth when there is no session.
func (a *app) requireLogin() error {
	if a.session.IsAuthenticated() {
		return nil
	}
	return a.fail(apperr.OpOther, NewExitError(ExitReauth, "Not logged in. Run 'linkctl login' first."))
}

// errorf builds a command error for bad user input.
func errorf(format string, args ...any) error {
	return NewExitError(ExitCommandError, fmt.Sprintf(format, args...))
}
