package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/oauth-lite/internal/config"
	"github.com/jrsteele09/oauth-lite/internal/logging"
	"github.com/jrsteele09/oauth-lite/server"
	"github.com/jrsteele09/oauth-lite/store"
	"github.com/jrsteele09/oauth-lite/store/boltstore"
	"github.com/jrsteele09/oauth-lite/store/memstore"
)

const shutdownTimeout = 5 * time.Second

// overrides maps command line flags to the setting they replace.
var overrides = map[string]string{
	"port":          config.PortEnvVar,
	"env":           config.EnvEnvVar,
	"log-level":     config.LogLevelEnvVar,
	"data-file":     config.DataFileEnvVar,
	"storage":       config.StorageDriverEnvVar,
	"login-path":    config.LoginPathEnvVar,
	"login-backend": config.LoginBackendEnvVar,
	"ldap-url":      config.LDAPURLEnvVar,
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:          "oauth-lite",
		Short:        "Self-hosted OAuth2 authorization server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			for flag, envVar := range overrides {
				if cmd.Flags().Changed(flag) {
					value, _ := cmd.Flags().GetString(flag)
					cfg.Override(envVar, value)
				}
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", config.DefaultFile, "path to the YAML configuration file")
	cmd.Flags().String("port", "", "listen port")
	cmd.Flags().String("env", "", "environment (DEV, PROD)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("data-file", "", "bbolt database path")
	cmd.Flags().String("storage", "", "storage driver (bolt, memory)")
	cmd.Flags().String("login-path", "", "path of the login page")
	cmd.Flags().String("login-backend", "", "login backend (ldap, static, upstream)")
	cmd.Flags().String("ldap-url", "", "LDAP server URL")
	return cmd
}

func run(ctx context.Context, cfg config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	logging.Setup(cfg.GetLogLevel(), cfg.GetEnv())
	displayAppname(cfg.GetAppName())

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Err(err).Msg("Failed to close store")
		}
	}()

	system, err := server.InitialiseSystem(ctx, cfg, db)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := server.New(cfg, system.Repos, registry)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		return system.RunJanitor(gCtx, cfg.GetJanitorInterval())
	})
	g.Go(func() error {
		<-gCtx.Done()
		return shutdown(httpServer)
	})
	returnError = g.Wait()
	log.Info().Msg("Server stopped")
	return returnError
}

func openStore(cfg config.Config) (store.Store, error) {
	switch driver := cfg.GetStorageDriver(); driver {
	case config.StorageDriverBolt:
		log.Info().Str("path", cfg.GetDataFile()).Msg("Opening bbolt store")
		return boltstore.Open(cfg.GetDataFile())
	case config.StorageDriverMemory:
		log.Warn().Msg("Using in-memory store, nothing survives a restart")
		return memstore.New(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", driver)
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
