package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aaronromeo/inboxsync/internal/announcer"
	"github.com/aaronromeo/inboxsync/internal/config"
	"github.com/aaronromeo/inboxsync/internal/handler"
	"github.com/aaronromeo/inboxsync/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const (
	configReloadInterval = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

// version is set at build time.
var version = "dev"

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll the selected folder and preload new message bodies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgPath, cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		folder, err := cmd.Flags().GetString("folder")
		if err != nil {
			return err
		}
		once, err := cmd.Flags().GetBool("once")
		if err != nil {
			return err
		}
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runSync(ctx, syncOptions{
			cfgPath: cfgPath,
			cfg:     cfg,
			folder:  folder,
			once:    once,
			out:     cmd.OutOrStdout(),
			logOut:  cmd.ErrOrStderr(),
		})
	},
}

func init() {
	syncCmd.Flags().String("folder", "", "Folder to select instead of session.folder")
	syncCmd.Flags().Bool("once", false, "Run a single poll cycle, wait for its downloads and exit")
	syncCmd.Flags().Bool("verbose", false, "Enable verbose logging")
}

type syncOptions struct {
	cfgPath   string
	cfg       config.Config
	folder    string
	once      bool
	out       io.Writer
	logOut    io.Writer
	tlsConfig *tls.Config
}

func runSync(ctx context.Context, opts syncOptions) error {
	if opts.out == nil {
		opts.out = os.Stdout
	}
	if opts.logOut == nil {
		opts.logOut = os.Stderr
	}
	cfg := opts.cfg
	if folder := strings.TrimSpace(opts.folder); folder != "" {
		cfg.Session.Folder = folder
	}

	imapEnv, err := config.IMAPEnvFromEnv()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
		DSN:      config.OTLPDSN(),
		Version:  version,
		Writer:   opts.logOut,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			fmt.Fprintf(opts.logOut, "telemetry shutdown failed: %v\n", err)
		}
	}()

	logger := telemetry.NewLogger(opts.logOut, telemetry.ParseLevel(cfg.LogLevel), cfg.Telemetry.Exporter != telemetry.ExporterNone)

	app, err := newSyncApp(ctx, cfg, imapEnv, appDeps{
		logger:    logger,
		tlsConfig: opts.tlsConfig,
		announcer: announcer.New(announcer.WithWebhookURL(config.WebhookURL())),
	})
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.populate(ctx); err != nil {
		return fmt.Errorf("load folder index: %w", err)
	}

	if opts.once {
		return runOnce(ctx, app, opts.out)
	}

	app.session.OnChange(func() {
		if app.poller.TryStart(ctx) {
			logger.InfoContext(ctx, "polling started", slog.String("folder", app.session.SelectedFolderID()))
		}
	})
	app.session.Changed()

	if addr := strings.TrimSpace(cfg.HTTP.Addr); addr != "" {
		stopServer, err := serveStatus(ctx, app, addr, logger)
		if err != nil {
			return err
		}
		defer stopServer()
	}

	fmt.Fprintf(opts.out, "syncing %s (poll interval %s)\n", app.session.SelectedFolderID(), app.session.PollInterval())

	reloadTicker := time.NewTicker(configReloadInterval)
	defer reloadTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("sync shutting down", slog.Any("reason", context.Cause(ctx)))
			return nil
		case <-reloadTicker.C:
			updated, err := config.Load(opts.cfgPath)
			if err != nil {
				logger.Warn("sync config reload failed", slog.Any("error", err))
				continue
			}
			if err := config.Validate(updated); err != nil {
				logger.Warn("sync config reload failed", slog.Any("error", err))
				continue
			}
			if folder := strings.TrimSpace(opts.folder); folder != "" {
				updated.Session.Folder = folder
			}
			app.apply(updated)
			logger.Info("sync config reloaded",
				slog.String("folder", updated.Session.Folder),
				slog.Duration("poll_interval", updated.Session.PollInterval.Std()))
		}
	}
}

func runOnce(ctx context.Context, app *syncApp, out io.Writer) error {
	report, err := app.poller.RunOnce(ctx)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, shutdownTimeout*6)
	defer cancel()
	if err := app.preloader.Drain(dctx); err != nil {
		return fmt.Errorf("waiting for downloads: %w", err)
	}

	stats := app.preloader.Stats()
	fmt.Fprintf(out, "folder %s: %d candidates, %d saved, %d failed\n",
		report.FolderID, report.Candidates, stats.Saved, stats.Failed)
	if report.Failed() {
		return errors.New("poll cycle failed: " + strings.Join(nonEmpty(report.FolderErr, report.MessageErr, report.Panic), "; "))
	}
	return nil
}

func serveStatus(ctx context.Context, app *syncApp, addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server: %w", err)
	}

	server := handler.NewApp(&handler.Handlers{
		Poller:   app.poller,
		Folders:  app.folders,
		Messages: app.messages,
		Session:  app.session,
		Preload:  app.preloader,
		Logger:   logger,
	}, handler.WithTracerProvider(otel.GetTracerProvider()), handler.WithMeterProvider(otel.GetMeterProvider()))

	go func() {
		if err := server.Listener(ln); err != nil {
			logger.Error("status server stopped", slog.Any("error", err))
		}
	}()
	logger.InfoContext(ctx, "status server listening", slog.String("addr", ln.Addr().String()))

	return func() {
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("status server shutdown", slog.Any("error", err))
		}
	}, nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
