package cli

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aaronromeo/inboxsync/internal/announcer"
	"github.com/aaronromeo/inboxsync/internal/bodystore"
	"github.com/aaronromeo/inboxsync/internal/config"
	"github.com/aaronromeo/inboxsync/internal/imap"
	"github.com/aaronromeo/inboxsync/internal/imap/sessionmanager"
	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/aaronromeo/inboxsync/internal/poller"
	"github.com/aaronromeo/inboxsync/internal/preload"
	"github.com/aaronromeo/inboxsync/internal/session"
	"github.com/aaronromeo/inboxsync/internal/store"
	"go.opentelemetry.io/otel"
)

// syncApp holds the wired components of one sync run.
type syncApp struct {
	logger    *slog.Logger
	user      mailbox.User
	session   *session.Session
	client    imap.Mailstore
	folders   *store.FolderStore
	messages  *store.MessageCacheStore
	bodies    bodystore.Store
	preloader *preload.Preloader
	poller    *poller.Poller
}

type appDeps struct {
	logger    *slog.Logger
	tlsConfig *tls.Config
	announcer announcer.Service
}

func newSyncApp(ctx context.Context, cfg config.Config, imapEnv config.IMAPEnv, deps appDeps) (*syncApp, error) {
	logger := deps.logger
	if logger == nil {
		logger = slog.Default()
	}

	cachePath, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	local, err := bodystore.Open(ctx, cachePath)
	if err != nil {
		return nil, err
	}

	var bodies bodystore.Store = local
	if cfg.Archive.Enabled {
		s3Env, err := config.S3EnvFromEnv()
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		archive, err := bodystore.NewS3Archive(bodystore.S3Config{
			Endpoint: s3Env.Endpoint,
			Region:   s3Env.Region,
			Bucket:   s3Env.Bucket,
			Key:      s3Env.Key,
			Secret:   s3Env.Secret,
			Prefix:   cfg.Archive.Prefix,
		})
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		bodies = bodystore.NewMulti(local, archive)
	}

	user := mailbox.User{
		Address:     imapEnv.User,
		Credentials: mailbox.Credentials{Username: imapEnv.User, Password: imapEnv.Pass},
	}

	client := imap.New(cfg.Session.MessageWindow,
		sessionmanager.WithAddr(imapEnv.Addr()),
		sessionmanager.WithTLSConfig(deps.tlsConfig),
		sessionmanager.WithLogger(logger),
	)

	sess := session.New(
		session.WithUser(user),
		session.WithSelectedFolder(cfg.Session.Folder),
		session.WithPollInterval(cfg.Session.PollInterval.Std()),
	)

	downloaded, err := local.DownloadedIDs(ctx, user.Address)
	if err != nil {
		_ = bodies.Close()
		_ = client.Close()
		return nil, err
	}
	sess.MarkDownloaded(downloaded...)

	preloadOpts := []preload.Option{preload.WithLogger(logger)}
	if deps.announcer != nil {
		notify := deps.announcer
		preloadOpts = append(preloadOpts, preload.WithOnPreloaded(func(folder mailbox.Folder, saved int) {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := notify.Preloaded(ctx, folder.ID, saved); err != nil {
				logger.Warn("reporting preload failed", slog.String("folder", folder.ID), slog.Any("error", err))
			}
		}))
	}
	preloader := preload.New(client, bodies, sess, preload.Config{
		Workers:     cfg.Preload.Workers,
		QueueSize:   cfg.Preload.QueueSize,
		TaskTimeout: cfg.Preload.TaskTimeout.Std(),
	}, preloadOpts...)

	folderStore := store.NewFolderStore(client, logger)
	messageStore := store.NewMessageCacheStore(client, logger)

	p := poller.New(folderStore, messageStore, preloader, sess,
		poller.WithLogger(logger),
		poller.WithPreloadBatch(cfg.Session.PreloadBatch),
		poller.WithRefreshTimeout(cfg.Session.RefreshTimeout.Std()),
		poller.WithMeterProvider(otel.GetMeterProvider()),
		poller.WithTracerProvider(otel.GetTracerProvider()),
	)

	logger.InfoContext(ctx, "sync stack ready",
		slog.String("folder", cfg.Session.Folder),
		slog.Int("downloaded", len(downloaded)),
		slog.Bool("archive", cfg.Archive.Enabled))

	return &syncApp{
		logger:    logger,
		user:      user,
		session:   sess,
		client:    client,
		folders:   folderStore,
		messages:  messageStore,
		bodies:    bodies,
		preloader: preloader,
		poller:    p,
	}, nil
}

// populate fills the folder index once so the poller can pass its
// readiness gate.
func (a *syncApp) populate(ctx context.Context) error {
	if err := a.folders.Reload(ctx, a.user.Credentials); err != nil {
		return err
	}
	if _, ok := a.folders.Get(a.session.SelectedFolderID()); !ok {
		a.logger.WarnContext(ctx, "selected folder not found on server",
			slog.String("folder", a.session.SelectedFolderID()),
			slog.Int("folders", a.folders.Len()))
	}
	return nil
}

// apply pushes the live-reloadable settings of cfg into the session.
func (a *syncApp) apply(cfg config.Config) {
	a.session.SetPollInterval(cfg.Session.PollInterval.Std())
	a.session.SelectFolder(cfg.Session.Folder)
}

// close stops the poller before the preloader so no preload is requested
// after the workers are gone.
func (a *syncApp) close() {
	a.poller.Stop()
	a.preloader.Shutdown()
	if err := a.bodies.Close(); err != nil {
		a.logger.Warn("close body store", slog.Any("error", err))
	}
	if err := a.client.Close(); err != nil {
		a.logger.Debug("close imap connection", slog.Any("error", err))
	}
}
