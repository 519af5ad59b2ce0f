// Package main provides the svgsync-server binary: the HTTP process hosting
// the record mutation hook, the management API, and the engines behind them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vectorglue/svgsync/internal/assets"
	"github.com/vectorglue/svgsync/internal/assets/s3store"
	"github.com/vectorglue/svgsync/internal/bootstrap"
	"github.com/vectorglue/svgsync/internal/config"
	"github.com/vectorglue/svgsync/internal/migration"
	"github.com/vectorglue/svgsync/internal/records/gormstore"
	"github.com/vectorglue/svgsync/internal/server"
	syncengine "github.com/vectorglue/svgsync/internal/sync"
)

var version = "dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "svgsync-server",
		Short: "Server keeping inline SVG sources and their binary renditions in sync",
		Long: `svgsync-server hosts the record mutation hook and the management API.

It watches record mutations delivered by the host, refreshes the binary
rendition of each edited SVG source in the asset library, migrates legacy
inline entries into per-asset records, and recovers the managed schema
after an interrupted setup.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8084", "HTTP listen address")
	flags.String("config", "svgsync.yaml", "path to the persisted configuration file")
	flags.String("db", "svgsync.db", "record store DSN (sqlite path or postgres:// URL)")
	flags.String("s3-bucket", "", "asset store bucket (empty disables the S3 asset store)")
	flags.String("s3-prefix", "svg-assets", "key prefix for asset objects")
	flags.String("s3-region", "", "asset store region override")
	flags.String("s3-endpoint", "", "S3-compatible endpoint override (enables path-style addressing)")
	flags.String("hook-secret", "", "shared HS256 secret for hook verification (empty disables it)")
	flags.StringSlice("cors-origins", nil, "origins allowed to call the management API")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix("SVGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger := newLogger(v.GetString("log-level"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgStore := config.NewFileStore(v.GetString("config"), config.WithLogger(logger))

	recStore, err := gormstore.Open(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}

	var assetStore assets.Store
	if bucket := v.GetString("s3-bucket"); bucket != "" {
		assetStore, err = s3store.New(ctx, s3store.Options{
			Bucket:   bucket,
			Prefix:   v.GetString("s3-prefix"),
			Region:   v.GetString("s3-region"),
			Endpoint: v.GetString("s3-endpoint"),
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("opening asset store: %w", err)
		}
	} else {
		return fmt.Errorf("an asset store is required: set --s3-bucket")
	}

	engine := syncengine.NewEngine(recStore, assetStore, syncengine.WithLogger(logger))
	migrator := migration.NewMigrator(engine, cfgStore, migration.WithLogger(logger))
	reconciler := bootstrap.NewReconciler(cfgStore, recStore, recStore, bootstrap.WithLogger(logger))

	// Self-heal an interrupted setup on start; an absent schema is not an
	// error here, provisioning stays an explicit operation.
	if _, err := reconciler.Reconcile(ctx); err != nil && !errors.Is(err, bootstrap.ErrNotProvisioned) {
		return fmt.Errorf("bootstrap reconciliation: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCORSOrigins(v.GetStringSlice("cors-origins")),
	}
	if secret := v.GetString("hook-secret"); secret != "" {
		opts = append(opts, server.WithHookVerifier(server.NewJWTHookVerifier(secret, logger)))
	}

	srv := server.New(engine, migrator, reconciler, cfgStore, opts...)

	logger.Info("svgsync-server starting",
		"version", version,
		"state", reconciler.State(),
		"managedModelId", reconciler.ManagedModelID(),
	)
	return srv.Run(ctx, v.GetString("addr"))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
