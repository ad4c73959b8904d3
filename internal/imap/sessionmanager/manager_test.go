package sessionmanager

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aaronromeo/inboxsync/ftest"
	"github.com/aaronromeo/inboxsync/internal/mailbox"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = mailbox.Credentials{Username: ftest.DefaultUser, Password: ftest.DefaultPass}

func connector(t *testing.T) *IMAPConnector {
	t.Helper()
	srv := ftest.SetupIMAPServer(t, nil, nil)
	c := New(WithAddr(srv.Addr), WithTLSConfig(ftest.ClientTLSConfig()))
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestDoReusesConnection(t *testing.T) {
	c := connector(t)
	ctx := context.Background()

	var first, second *giimapclient.Client
	require.NoError(t, c.Do(ctx, creds, func(client *giimapclient.Client) error {
		first = client
		return nil
	}))
	require.NoError(t, c.Do(ctx, creds, func(client *giimapclient.Client) error {
		second = client
		return client.Noop().Wait()
	}))
	assert.Same(t, first, second)
}

func TestDoRedialsOnCredentialChange(t *testing.T) {
	c := connector(t)
	ctx := context.Background()

	var first *giimapclient.Client
	require.NoError(t, c.Do(ctx, creds, func(client *giimapclient.Client) error {
		first = client
		return nil
	}))

	err := c.Do(ctx, mailbox.Credentials{Username: ftest.DefaultUser, Password: "wrong"}, func(*giimapclient.Client) error {
		t.Fatal("fn must not run without a login")
		return nil
	})
	require.Error(t, err)

	var again *giimapclient.Client
	require.NoError(t, c.Do(ctx, creds, func(client *giimapclient.Client) error {
		again = client
		return nil
	}))
	assert.NotSame(t, first, again)
}

func TestDoRedialsAfterContextCancel(t *testing.T) {
	c := connector(t)

	ctx, cancel := context.WithCancel(context.Background())
	var first *giimapclient.Client
	err := c.Do(ctx, creds, func(client *giimapclient.Client) error {
		first = client
		cancel()
		// give the cancel hook time to close the connection
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	var second *giimapclient.Client
	require.NoError(t, c.Do(context.Background(), creds, func(client *giimapclient.Client) error {
		second = client
		return client.Noop().Wait()
	}))
	assert.NotSame(t, first, second)
}

func TestDoDialIsBoundedByContext(t *testing.T) {
	// accepts connections and never answers the TLS handshake
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-accepted:
			_ = conn.Close()
		default:
		}
	})

	c := New(WithAddr(ln.Addr().String()), WithTLSConfig(ftest.ClientTLSConfig()))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.Do(ctx, creds, func(*giimapclient.Client) error {
		t.Fatal("fn must not run without a connection")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDoValidates(t *testing.T) {
	c := New()
	err := c.Do(context.Background(), creds, func(*giimapclient.Client) error { return nil })
	assert.ErrorIs(t, err, ErrNoAddr)

	c = New(WithAddr("127.0.0.1:1"))
	err = c.Do(context.Background(), mailbox.Credentials{}, func(*giimapclient.Client) error { return nil })
	assert.ErrorIs(t, err, ErrNoCreds)
}

func TestCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, New().Close())
}
