// Package poller keeps the folder index and the selected folder's message
// cache fresh while a session is open, and asks the preloader to download
// the bodies of the newest messages that are not local yet.
//
// A Poller moves through Idle -> Running -> Stopped. TryStart is the
// readiness gate and is safe to call on every session change; Stop ends the
// chain for good.
package poller

//go:generate mockgen -source=poller.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/aaronromeo/inboxsync/internal/session"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPreloadBatch is how many of the newest messages are considered
	// for preloading on every cycle.
	DefaultPreloadBatch = 15
	// DefaultPollInterval is used when the session carries no positive interval.
	DefaultPollInterval = 30 * time.Second

	instrumentationName = "github.com/aaronromeo/inboxsync/internal/poller"
)

var (
	// ErrRunning is returned by RunOnce while the chain is active.
	ErrRunning = errors.New("poller is already running")
	// ErrStopped is returned by RunOnce after Stop.
	ErrStopped = errors.New("poller is stopped")
)

// FolderStore owns the folder index.
type FolderStore interface {
	Reload(ctx context.Context, creds mailbox.Credentials) error
	Get(id string) (mailbox.Folder, bool)
	Len() int
}

// MessageCache owns the per-folder message summaries, newest first.
type MessageCache interface {
	Reload(ctx context.Context, user mailbox.User, folder mailbox.Folder) error
	Messages(folderID string) ([]mailbox.MessageSummary, bool)
}

// Preloader downloads message bodies in the background.
type Preloader interface {
	Preload(creds mailbox.Credentials, folder mailbox.Folder, uids []uint32)
}

// SessionSource exposes the hosting session state.
type SessionSource interface {
	Snapshot() session.Snapshot
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CycleReport summarises the most recent cycle.
type CycleReport struct {
	FolderID   string    `json:"folderId"`
	StartedAt  time.Time `json:"startedAt"`
	SettledAt  time.Time `json:"settledAt"`
	FolderErr  string    `json:"folderError,omitempty"`
	MessageErr string    `json:"messageError,omitempty"`
	Panic      string    `json:"panic,omitempty"`
	Candidates int       `json:"candidates"`
	Preloaded  bool      `json:"preloaded"`
}

func (r CycleReport) Failed() bool {
	return r.FolderErr != "" || r.MessageErr != "" || r.Panic != ""
}

type Option func(*Poller)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.log = logger
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

// WithPreloadBatch overrides DefaultPreloadBatch. Values below 1 are ignored.
func WithPreloadBatch(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.batch = n
		}
	}
}

// WithRefreshTimeout bounds the store reloads of a single cycle.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.refreshTimeout = d
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Poller) {
		p.meter = mp.Meter(instrumentationName)
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Poller) {
		p.tracer = tp.Tracer(instrumentationName)
	}
}

type Poller struct {
	folders   FolderStore
	messages  MessageCache
	preloader Preloader
	session   SessionSource

	clock          clockwork.Clock
	log            *slog.Logger
	batch          int
	refreshTimeout time.Duration

	meter   metric.Meter
	tracer  trace.Tracer
	metrics cycleMetrics

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}

	lastMu sync.RWMutex
	last   *CycleReport
}

func New(folders FolderStore, messages MessageCache, preloader Preloader, sess SessionSource, opts ...Option) *Poller {
	p := &Poller{
		folders:   folders,
		messages:  messages,
		preloader: preloader,
		session:   sess,
		clock:     clockwork.NewRealClock(),
		log:       slog.Default(),
		batch:     DefaultPreloadBatch,
		meter:     otel.Meter(instrumentationName),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newCycleMetrics(p.meter, p.log)
	return p
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastCycle returns the report of the last settled cycle.
func (p *Poller) LastCycle() (CycleReport, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return CycleReport{}, false
	}
	return *p.last, true
}

// Ready reports whether a folder is selected and the folder index is populated.
func (p *Poller) Ready() bool {
	return p.session.Snapshot().SelectedFolderID != "" && p.folders.Len() > 0
}

// TryStart starts the cycle chain when the session is ready and the poller
// is idle. It returns true only for the call that started the chain.
// The first cycle runs immediately; ctx bounds the store calls and ends the
// chain when cancelled.
func (p *Poller) TryStart(ctx context.Context) bool {
	if !p.Ready() {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Idle {
		return false
	}
	p.state = Running
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop(ctx, p.stop, p.done)

	p.log.InfoContext(ctx, "poller started", slog.Int("preload_batch", p.batch))
	return true
}

// Stop cancels the pending timer. A cycle in flight is allowed to finish and
// Stop waits for it, so no store or preload call is issued after Stop
// returns. Stop must not be called from inside a store or preloader call.
func (p *Poller) Stop() {
	p.mu.Lock()
	prev := p.state
	p.state = Stopped
	stop, done := p.stop, p.done
	p.stop = nil
	p.mu.Unlock()

	if prev == Running && stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
	if prev != Stopped {
		p.log.Info("poller stopped", slog.String("previous_state", prev.String()))
	}
}

// RunOnce runs a single cycle synchronously on an idle poller.
func (p *Poller) RunOnce(ctx context.Context) (CycleReport, error) {
	p.mu.Lock()
	if p.state != Idle {
		state := p.state
		p.mu.Unlock()
		if state == Stopped {
			return CycleReport{}, ErrStopped
		}
		return CycleReport{}, ErrRunning
	}
	p.state = Running
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	report := p.runCycle(ctx)

	p.mu.Lock()
	if p.state == Running {
		p.state = Idle
	}
	p.mu.Unlock()
	close(done)
	return report, nil
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.state = Stopped
		p.mu.Unlock()
	}()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			p.log.Info("poller context done", slog.Any("error", ctx.Err()))
			return
		default:
		}

		p.runCycle(ctx)

		// The interval is read after the cycle settles so a changed session
		// interval applies to the next wait.
		interval := p.session.Snapshot().PollInterval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		timer := p.clock.NewTimer(interval)
		select {
		case <-timer.Chan():
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("poller context done", slog.Any("error", ctx.Err()))
			return
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) (report CycleReport) {
	snap := p.session.Snapshot()
	report = CycleReport{
		FolderID:  snap.SelectedFolderID,
		StartedAt: p.clock.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "poller.cycle",
		trace.WithAttributes(attribute.String("folder", snap.SelectedFolderID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			report.Panic = fmt.Sprint(r)
			p.log.ErrorContext(ctx, "poll cycle panicked", slog.Any("panic", r))
		}
		report.SettledAt = p.clock.Now()
		if report.Failed() {
			span.SetStatus(codes.Error, "poll cycle failed")
		}
		p.record(ctx, report)
	}()

	folder, ok := p.folders.Get(snap.SelectedFolderID)
	if !ok {
		p.log.DebugContext(ctx, "selected folder not in index", slog.String("folder", snap.SelectedFolderID))
		folder = mailbox.Folder{}
	}

	folderErr, messageErr := p.refresh(ctx, snap, folder)
	if folderErr != nil {
		report.FolderErr = folderErr.Error()
	}
	if messageErr != nil {
		report.MessageErr = messageErr.Error()
	}
	// A failed reload ends the cycle; the cache may still hold the
	// previous listing.
	if report.Failed() {
		return report
	}

	uids, ok := p.decide(snap.SelectedFolderID)
	if !ok {
		return report
	}
	report.Candidates = len(uids)
	report.Preloaded = true
	p.preloader.Preload(snap.Credentials, folder, uids)
	return report
}

// refresh reloads the folder index and the selected folder's cache
// concurrently and waits for both, whatever either returns.
func (p *Poller) refresh(ctx context.Context, snap session.Snapshot, folder mailbox.Folder) (folderErr, messageErr error) {
	if p.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.refreshTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.Go(func() error {
		folderErr = guard(func() error {
			return p.folders.Reload(ctx, snap.Credentials)
		})
		if folderErr != nil {
			p.log.WarnContext(ctx, "folder reload failed", slog.Any("error", folderErr))
		}
		return folderErr
	})
	g.Go(func() error {
		messageErr = guard(func() error {
			return p.messages.Reload(ctx, snap.User, folder)
		})
		if messageErr != nil {
			p.log.WarnContext(ctx, "message cache reload failed",
				slog.String("folder", folder.ID),
				slog.Any("error", messageErr))
		}
		return messageErr
	})
	_ = g.Wait()
	return folderErr, messageErr
}

// decide reads the post-refresh cache and returns the uids to preload. The
// downloaded set is read after the refresh so bodies fetched meanwhile are
// not requested again.
func (p *Poller) decide(folderID string) ([]uint32, bool) {
	messages, ok := p.messages.Messages(folderID)
	if !ok {
		return nil, false
	}
	downloaded := p.session.Snapshot().DownloadedMessageIDs
	return SelectCandidates(messages, downloaded, p.batch), true
}

func (p *Poller) record(ctx context.Context, report CycleReport) {
	p.lastMu.Lock()
	p.last = &report
	p.lastMu.Unlock()

	p.metrics.observe(ctx, report)
	p.log.DebugContext(ctx, "poll cycle settled",
		slog.String("folder", report.FolderID),
		slog.Duration("took", report.SettledAt.Sub(report.StartedAt)),
		slog.Int("candidates", report.Candidates),
		slog.Bool("failed", report.Failed()))
}

// SelectCandidates takes the first n messages in recency order, drops those
// already downloaded and returns the remaining uids in the same order.
func SelectCandidates(messages []mailbox.MessageSummary, downloaded map[string]struct{}, n int) []uint32 {
	if n <= 0 || len(messages) == 0 {
		return []uint32{}
	}
	if n > len(messages) {
		n = len(messages)
	}
	uids := make([]uint32, 0, n)
	for _, msg := range messages[:n] {
		if _, ok := downloaded[msg.MessageID]; ok {
			continue
		}
		uids = append(uids, msg.UID)
	}
	return uids
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
