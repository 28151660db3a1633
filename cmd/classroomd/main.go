// Command classroomd is the realtime collaboration backend's entrypoint:
// it loads configuration, wires every subsystem in internal/ into a
// dispatcher.Env, and serves the websocket event stream until signalled to
// stop. User and course management are owned by the external registration
// service, so the CLI surface stays at start/migrate/version.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/classroomlive/classroomd/internal/authclient"
	"github.com/classroomlive/classroomd/internal/cache"
	"github.com/classroomlive/classroomd/internal/config"
	"github.com/classroomlive/classroomd/internal/dispatcher"
	"github.com/classroomlive/classroomd/internal/feedback"
	"github.com/classroomlive/classroomd/internal/filestore"
	_ "github.com/classroomlive/classroomd/internal/handlers"
	"github.com/classroomlive/classroomd/internal/kv"
	"github.com/classroomlive/classroomd/internal/logger"
	"github.com/classroomlive/classroomd/internal/metadata/postgres"
	"github.com/classroomlive/classroomd/internal/objectstore"
	"github.com/classroomlive/classroomd/internal/permission"
	"github.com/classroomlive/classroomd/internal/session"
	"github.com/classroomlive/classroomd/internal/telemetry"
	"github.com/classroomlive/classroomd/internal/template"
	"github.com/classroomlive/classroomd/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "classroomd",
		Short:         "Realtime collaboration backend for the classroom event dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	root.AddCommand(startCmd(), versionCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "classroomd:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("classroomd %s (commit %s)\n", version, commit)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metadata store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			store, err := postgres.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			return store.Close()
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the classroomd event dispatcher server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.ToLoggerConfig()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.With("component", "classroomd")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:    cfg.Telemetry.Enabled,
		ServiceName: "classroomd",
		ServiceVersion: version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = telemetryShutdown(context.Background()) }()

	store, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer store.Close()

	kvStore, err := kv.Open(cfg.KV.URL, cfg.KV.DB)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer kvStore.Close()

	objStore, err := objectstore.New(ctx, objectstore.Config{
		Bucket:         cfg.Object.Bucket,
		Region:         cfg.Object.Region,
		Endpoint:       cfg.Object.Endpoint,
		ForcePathStyle: cfg.Object.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	memo, err := cache.New(cache.Config{
		NumCounters: cfg.Cache.NumCounters,
		MaxCost:     cfg.Cache.MaxCost,
		TTL:         cfg.Cache.TTL,
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer memo.Close()

	files := filestore.New(kvStore, objStore, filestore.Config{
		HotLimit:         cfg.Limits.HotLimit,
		ProjectSizeLimit: cfg.Limits.ProjectSizeLimit,
	})

	env := &dispatcher.Env{
		Store:      store,
		Cache:      memo,
		Perm:       permission.New(store, memo),
		Files:      files,
		Template:   template.New(files, store),
		Feedback:   feedback.New(store),
		Sessions:   session.New(),
		KV:         kvStore,
		Log:        log,
		Metrics:    telemetry.NewMetrics(),
		SubsPerPtc: maxSubsPerPtc,
	}

	d := dispatcher.New(env)
	go d.RunEvictionListener(ctx)
	verifier := authclient.New(cfg.Auth.VerifyURL)
	srv := transport.NewServer(cfg.Listen.Address, d, verifier, cfg.Auth.MonitorKey, log)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("classroomd starting", "version", version, "listen", cfg.Listen.Address)
	if err := srv.Start(sigCtx); err != nil {
		return fmt.Errorf("transport server: %w", err)
	}
	log.Info("classroomd stopped")
	return nil
}

// maxSubsPerPtc bounds SUBS_PTC memberships per session, which in turn
// bounds per-event fan-out; kept here rather than hardcoded into
// internal/dispatcher so an operator-tuned override is a one-line change
// away from becoming a config field.
const maxSubsPerPtc = 512
