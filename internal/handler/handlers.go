// Package handler serves the read-only status API of a running sync.
package handler

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/aaronromeo/inboxsync/internal/poller"
	"github.com/aaronromeo/inboxsync/internal/preload"
	"github.com/aaronromeo/inboxsync/internal/session"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type PollerStatus interface {
	State() poller.State
	LastCycle() (poller.CycleReport, bool)
}

type FolderIndex interface {
	Get(id string) (mailbox.Folder, bool)
	List() []mailbox.Folder
}

type MessageIndex interface {
	Messages(folderID string) ([]mailbox.MessageSummary, bool)
	Invalidate(folderID string)
	Sizes() map[string]int
}

type SessionControl interface {
	Snapshot() session.Snapshot
	SelectFolder(folderID string)
}

type PreloadStats interface {
	Stats() preload.Stats
}

// Handlers backs the status routes.
type Handlers struct {
	Poller   PollerStatus
	Folders  FolderIndex
	Messages MessageIndex
	Session  SessionControl
	Preload  PreloadStats
	Logger   *slog.Logger
}

type Status struct {
	State          string              `json:"state"`
	Folder         string              `json:"folder"`
	PollInterval   string              `json:"pollInterval"`
	Downloaded     int                 `json:"downloaded"`
	LastCycle      *poller.CycleReport `json:"lastCycle,omitempty"`
	Preload        *preload.Stats      `json:"preload,omitempty"`
	FolderIndexLen int                 `json:"folders"`
	Cached         map[string]int      `json:"cached"`
}

type selectFolderRequest struct {
	Folder string `json:"folder"`
}

type Option func(*appOptions)

type appOptions struct {
	otel []otelfiber.Option
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *appOptions) {
		o.otel = append(o.otel, otelfiber.WithTracerProvider(tp))
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *appOptions) {
		o.otel = append(o.otel, otelfiber.WithMeterProvider(mp))
	}
}

// NewApp builds the fiber app with tracing middleware and all routes.
func NewApp(h *Handlers, opts ...Option) *fiber.App {
	o := appOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "inboxsync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          h.errorHandler,
	})
	app.Use(otelfiber.Middleware(o.otel...))

	app.Get("/healthz", Healthz)
	api := app.Group("/api")
	api.Get("/status", h.Status)
	api.Get("/folders", h.ListFolders)
	api.Get("/folders/:id/messages", h.FolderMessages)
	api.Delete("/folders/:id/messages", h.DropFolderMessages)
	api.Put("/session/folder", h.SelectFolder)
	app.Use(NotFound)
	return app
}

func Healthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// NotFound answers unknown routes.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "no route for "+c.Path())
}

func (h *Handlers) Status(c *fiber.Ctx) error {
	snap := h.Session.Snapshot()
	status := Status{
		State:          h.Poller.State().String(),
		Folder:         snap.SelectedFolderID,
		PollInterval:   snap.PollInterval.String(),
		Downloaded:     len(snap.DownloadedMessageIDs),
		FolderIndexLen: len(h.Folders.List()),
		Cached:         h.Messages.Sizes(),
	}
	if report, ok := h.Poller.LastCycle(); ok {
		status.LastCycle = &report
	}
	if h.Preload != nil {
		stats := h.Preload.Stats()
		status.Preload = &stats
	}
	return c.JSON(status)
}

func (h *Handlers) ListFolders(c *fiber.Ctx) error {
	return c.JSON(h.Folders.List())
}

func (h *Handlers) FolderMessages(c *fiber.Ctx) error {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad folder id")
	}
	messages, ok := h.Messages.Messages(id)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "folder "+id+" is not cached")
	}
	return c.JSON(messages)
}

// DropFolderMessages forgets the cached summaries of a folder; the next cycle
// lists it again.
func (h *Handlers) DropFolderMessages(c *fiber.Ctx) error {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "bad folder id")
	}
	h.Messages.Invalidate(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) SelectFolder(c *fiber.Ctx) error {
	var req selectFolderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	req.Folder = strings.TrimSpace(req.Folder)
	if req.Folder == "" {
		return fiber.NewError(fiber.StatusBadRequest, "folder is required")
	}
	if _, ok := h.Folders.Get(req.Folder); !ok && len(h.Folders.List()) > 0 {
		return fiber.NewError(fiber.StatusNotFound, "unknown folder "+req.Folder)
	}

	h.Session.SelectFolder(req.Folder)
	h.Logger.Info("folder selected over http", slog.String("folder", req.Folder))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"folder": req.Folder})
}

func (h *Handlers) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		h.Logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
