package sessionmanager

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

// dialTimeout caps dial and TLS handshake when ctx has no deadline.
const dialTimeout = 30 * time.Second

var (
	ErrNoAddr  = errors.New("IMAP address is required")
	ErrNoCreds = errors.New("IMAP credentials are required")
)

type Option func(*IMAPConnector)

// IMAPConnector owns a single IMAP connection. Commands are serialized
// because the selected mailbox is connection state.
type IMAPConnector struct {
	Addr      string
	TLSConfig *tls.Config
	Logger    *slog.Logger

	mu     sync.Mutex
	client *giimapclient.Client
	creds  mailbox.Credentials
}

func WithAddr(a string) Option {
	return func(c *IMAPConnector) {
		c.Addr = a
	}
}

func WithTLSConfig(config *tls.Config) Option {
	return func(c *IMAPConnector) {
		c.TLSConfig = config
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *IMAPConnector) {
		c.Logger = logger
	}
}

func New(opts ...Option) *IMAPConnector {
	c := &IMAPConnector{Logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs fn with a logged-in client for creds, dialing if needed. A
// connection that failed or was cut by ctx is dropped and re-dialed on the
// next call.
func (c *IMAPConnector) Do(ctx context.Context, creds mailbox.Credentials, fn func(*giimapclient.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// ctx may have run out while waiting for the lock.
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.client != nil && c.creds != creds {
		c.closeLocked()
	}
	if c.client == nil {
		if err := c.connectLocked(ctx, creds); err != nil {
			return err
		}
	}

	client := c.client
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	err := fn(client)
	if !stop() {
		// ctx fired and closed the connection underneath fn.
		c.client = nil
		if err == nil {
			err = ctx.Err()
		}
		return err
	}

	if err != nil && client.State() == imap.ConnStateLogout {
		c.Logger.Warn("IMAP connection lost", slog.String("addr", c.Addr), slog.Any("error", err))
		_ = client.Close()
		c.client = nil
	}
	return err
}

// Close logs out and clears the connection.
func (c *IMAPConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

// connectLocked dials and logs in; both are bounded by ctx.
func (c *IMAPConnector) connectLocked(ctx context.Context, creds mailbox.Credentials) error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrNoAddr
	}
	if strings.TrimSpace(creds.Username) == "" || strings.TrimSpace(creds.Password) == "" {
		return ErrNoCreds
	}

	tlsConfig := &tls.Config{}
	if c.TLSConfig != nil {
		tlsConfig = c.TLSConfig.Clone()
	}
	if tlsConfig.NextProtos == nil {
		tlsConfig.NextProtos = []string{"imap"}
	}

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: dialTimeout}, Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.Addr)
	}
	client := giimapclient.New(conn, &giimapclient.Options{TLSConfig: tlsConfig})

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	err = client.Login(creds.Username, creds.Password).Wait()
	if !stop() {
		_ = client.Close()
		return errors.Wrap(ctx.Err(), "login")
	}
	if err != nil {
		_ = client.Close()
		return errors.Wrap(err, "login")
	}

	c.Logger.Debug("IMAP connected", slog.String("addr", c.Addr), slog.String("user", creds.Username))
	c.client = client
	c.creds = creds
	return nil
}

func (c *IMAPConnector) closeLocked() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout().Wait()
	_ = c.client.Close()
	c.client = nil
	c.creds = mailbox.Credentials{}
	return err
}
