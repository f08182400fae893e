package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/qadhya/drivesync/internal/app"
	"github.com/qadhya/drivesync/internal/auth"
	"github.com/qadhya/drivesync/internal/config"
	"github.com/qadhya/drivesync/internal/logging"
	"github.com/qadhya/drivesync/internal/scheduler"
	"github.com/qadhya/drivesync/internal/server"
	"github.com/qadhya/drivesync/internal/state"
)

var Version = "dev"

const usage = `usage: drivesync [command]

commands:
  serve                               run the scheduler and the ops API (default)
  run --tenant <id> [--root <folder>] run one sync and print its summary
  token import --tenant <id> --file <token.json>
                                      store a tenant's OAuth token
  token delete --tenant <id>          remove a tenant's OAuth token
  token list                          list tenants with a stored token
  hash-key                            generate an ops API key and its bcrypt hash
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	// hash-key needs no configuration.
	if cmd == "hash-key" {
		hashKey()
		return
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "run":
		err = runOnce(args)
	case "token":
		err = tokenCmd(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		err = fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashKey() {
	key, hash, err := auth.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "API key (give to the client, shown once):")
	fmt.Println(key)
	fmt.Fprintln(os.Stderr, "bcrypt hash (add to OPS_API_KEYS as user:hash):")
	fmt.Println(hash)
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewFileLogger(cfg.Environment, cfg.LogDir)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}

	return cfg, logger, nil
}

func serve() error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	logger.Info("drivesync starting",
		slog.String("version", Version),
		slog.String("database_driver", cfg.DatabaseDriver),
		slog.Duration("interval", cfg.Interval),
		slog.String("listen", cfg.HTTPListenAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Interval <= 0 && cfg.HTTPListenAddr == "" {
		return errors.New("nothing to serve: set SYNC_INTERVAL and/or HTTP_LISTEN_ADDR")
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Interval > 0 {
		sched := scheduler.New(a.Store, a.Engine, cfg.Interval, a.Defaults,
			logging.WithComponent(logger, "scheduler"))
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	if cfg.HTTPListenAddr != "" {
		g.Go(func() error {
			return runHTTP(gctx, cfg, a, logging.WithComponent(logger, "http"))
		})
	}

	return g.Wait()
}

// runHTTP serves the ops API until ctx is cancelled.
func runHTTP(ctx context.Context, cfg *config.Config, a *app.App, logger *slog.Logger) error {
	entries, err := cfg.ParseOpsAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing ops API keys: %w", err)
	}
	keys := auth.NewKeys(entries)

	mux := server.NewMux(server.MuxConfig{
		Runner:   a.Engine,
		History:  a.Store,
		Keys:     keys,
		Logger:   logger,
		Defaults: a.Defaults,
	})

	// A sync request is answered when the run finishes.
	writeTimeout := 60 * time.Second
	if cfg.RunTimeout > 0 {
		writeTimeout += cfg.RunTimeout
	} else {
		writeTimeout = 0
	}

	srv := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting ops API",
		slog.String("listen", cfg.HTTPListenAddr),
		slog.Int("keys", keys.Len()),
	)

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down ops API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops API server error: %w", err)
	}

	return nil
}

func runOnce(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant to synchronise")
	root := fs.String("root", "", "remote folder id overriding the configured root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return errors.New("--tenant is required")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	syncCfg := a.Defaults
	syncCfg.TenantID = *tenantID
	syncCfg.RootFolderID = *root

	summary, runErr := a.Engine.Run(ctx, syncCfg)
	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	}

	return runErr
}

func tokenCmd(args []string) error {
	const tokenUsage = "usage: drivesync token import|delete --tenant <id> [--file <token.json>] | token list"
	if len(args) == 0 {
		return errors.New(tokenUsage)
	}

	sub := args[0]
	fs := flag.NewFlagSet("token "+sub, flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant owning the token")
	file := fs.String("file", "", "OAuth token JSON (access_token, refresh_token, expiry)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch sub {
	case "import":
		if *tenantID == "" || *file == "" {
			return errors.New("--tenant and --file are required")
		}
	case "delete":
		if *tenantID == "" {
			return errors.New("--tenant is required")
		}
	case "list":
	default:
		return errors.New(tokenUsage)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	st, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer st.Close()

	switch sub {
	case "list":
		tenants, err := st.TenantsWithTokens()
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}
		for _, t := range tenants {
			fmt.Println(t)
		}
		return nil

	case "delete":
		if err := st.DeleteTenantToken(*tenantID); err != nil {
			return fmt.Errorf("deleting token: %w", err)
		}
		logger.Info("token deleted", slog.String("tenant_id", *tenantID))
		return nil
	}

	tok, err := readToken(*file)
	if err != nil {
		return err
	}

	if err := st.SetTenantToken(*tenantID, tok); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	logger.Info("token stored",
		slog.String("tenant_id", *tenantID),
		slog.Bool("refreshable", tok.RefreshToken != ""),
	)
	return nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file has neither access_token nor refresh_token")
	}

	return &tok, nil
}
