// Package preload downloads message bodies in the background so opening a
// message does not wait on the server.
package preload

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aaronromeo/inboxsync/internal/bodystore"
	"github.com/aaronromeo/inboxsync/internal/mailbox"
)

const (
	DefaultWorkers      = 3
	DefaultQueueSize    = 64
	DefaultTaskTimeout  = 2 * time.Minute
	DefaultPreviewChars = 200
)

// Fetcher downloads full message bodies.
type Fetcher interface {
	FetchBodies(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder, uids []uint32) ([]mailbox.RawMessage, error)
}

// Marker records message ids whose bodies are now local.
type Marker interface {
	MarkDownloaded(ids ...string)
}

type Config struct {
	Workers      int
	QueueSize    int
	TaskTimeout  time.Duration
	PreviewChars int
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.PreviewChars <= 0 {
		c.PreviewChars = DefaultPreviewChars
	}
}

// Stats counts preload activity since start.
type Stats struct {
	Requested int64 `json:"requested"`
	Dropped   int64 `json:"dropped"`
	Saved     int64 `json:"saved"`
	Failed    int64 `json:"failed"`
	Active    int32 `json:"active"`
}

type Option func(*Preloader)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Preloader) {
		p.logger = logger
	}
}

// WithOnPreloaded registers a callback run after a task saved at least one
// body.
func WithOnPreloaded(fn func(folder mailbox.Folder, saved int)) Option {
	return func(p *Preloader) {
		p.onPreloaded = fn
	}
}

type task struct {
	creds  mailbox.Credentials
	folder mailbox.Folder
	uids   []uint32
}

type Preloader struct {
	fetcher     Fetcher
	bodies      bodystore.Store
	marker      Marker
	config      Config
	logger      *slog.Logger
	onPreloaded func(folder mailbox.Folder, saved int)

	tasks  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
	closed     bool

	requested atomic.Int64
	dropped   atomic.Int64
	saved     atomic.Int64
	failed    atomic.Int64
	active    atomic.Int32
}

// New starts the worker pool.
func New(fetcher Fetcher, bodies bodystore.Store, marker Marker, config Config, opts ...Option) *Preloader {
	config.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Preloader{
		fetcher:  fetcher,
		bodies:   bodies,
		marker:   marker,
		config:   config,
		logger:   slog.Default(),
		tasks:    make(chan task, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		inflight: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Preload queues uids of folder for download and returns immediately. Uids
// already queued or downloading are skipped; a full queue drops the request.
func (p *Preloader) Preload(creds mailbox.Credentials, folder mailbox.Folder, uids []uint32) {
	if len(uids) == 0 {
		p.logger.Debug("nothing to preload", slog.String("folder", folder.ID))
		return
	}
	if folder.IsZero() {
		p.logger.Warn("preload requested without a folder", slog.Int("uids", len(uids)))
		return
	}
	p.requested.Add(1)

	p.inflightMu.Lock()
	if p.closed {
		p.inflightMu.Unlock()
		return
	}
	fresh := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		key := inflightKey(folder.ID, uid)
		if _, ok := p.inflight[key]; ok {
			continue
		}
		p.inflight[key] = struct{}{}
		fresh = append(fresh, uid)
	}
	if len(fresh) == 0 {
		p.inflightMu.Unlock()
		return
	}

	select {
	case p.tasks <- task{creds: creds, folder: folder, uids: fresh}:
		p.inflightMu.Unlock()
	default:
		for _, uid := range fresh {
			delete(p.inflight, inflightKey(folder.ID, uid))
		}
		p.inflightMu.Unlock()
		p.dropped.Add(1)
		p.logger.Warn("preload queue full, request dropped",
			slog.String("folder", folder.ID),
			slog.Int("uids", len(fresh)))
	}
}

func (p *Preloader) Stats() Stats {
	return Stats{
		Requested: p.requested.Load(),
		Dropped:   p.dropped.Load(),
		Saved:     p.saved.Load(),
		Failed:    p.failed.Load(),
		Active:    p.active.Load(),
	}
}

// Shutdown cancels running downloads, drops queued ones and waits for the
// workers to exit.
func (p *Preloader) Shutdown() {
	p.closeQueue()
	p.cancel()
	p.wg.Wait()
}

// Drain stops accepting requests and waits for the queued downloads to
// finish. Downloads still running when ctx ends are cancelled.
func (p *Preloader) Drain(ctx context.Context) error {
	p.closeQueue()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Preloader) closeQueue() {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
}

func (p *Preloader) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		if p.ctx.Err() != nil {
			p.release(t)
			continue
		}
		p.active.Add(1)
		p.process(t)
		p.active.Add(-1)
		p.release(t)
	}
}

func (p *Preloader) release(t task) {
	p.inflightMu.Lock()
	for _, uid := range t.uids {
		delete(p.inflight, inflightKey(t.folder.ID, uid))
	}
	p.inflightMu.Unlock()
}

func (p *Preloader) process(t task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	started := time.Now()
	raws, err := p.fetcher.FetchBodies(ctx, t.creds, t.folder, t.uids)
	if err != nil {
		p.failed.Add(int64(len(t.uids)))
		p.logger.WarnContext(ctx, "fetch bodies failed",
			slog.String("folder", t.folder.ID),
			slog.Int("uids", len(t.uids)),
			slog.Any("error", err))
		return
	}

	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		if raw.MessageID == "" {
			p.logger.DebugContext(ctx, "skipping body without message id", slog.Any("uid", raw.UID))
			continue
		}

		parsed, err := Parse(raw.Literal, p.config.PreviewChars)
		if err != nil {
			p.logger.DebugContext(ctx, "could not parse body", slog.Any("uid", raw.UID), slog.Any("error", err))
		}

		body := bodystore.Body{
			Account:   t.creds.Username,
			FolderID:  t.folder.ID,
			UID:       raw.UID,
			MessageID: raw.MessageID,
			Subject:   strings.TrimSpace(parsed.Subject),
			From:      parsed.From,
			Date:      parsed.Date,
			Preview:   parsed.Preview,
			Raw:       raw.Literal,
		}
		if err := p.bodies.Save(ctx, body); err != nil {
			p.failed.Add(1)
			p.logger.WarnContext(ctx, "save body failed",
				slog.String("message_id", raw.MessageID),
				slog.Any("error", err))
			continue
		}
		ids = append(ids, raw.MessageID)
	}

	if len(ids) == 0 {
		return
	}
	p.saved.Add(int64(len(ids)))
	p.marker.MarkDownloaded(ids...)
	p.logger.InfoContext(ctx, "preloaded bodies",
		slog.String("folder", t.folder.ID),
		slog.Int("saved", len(ids)),
		slog.Duration("took", time.Since(started)))

	if p.onPreloaded != nil {
		p.onPreloaded(t.folder, len(ids))
	}
}

func inflightKey(folderID string, uid uint32) string {
	return folderID + "/" + strconv.FormatUint(uint64(uid), 10)
}
