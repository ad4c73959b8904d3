package imap

import (
	"context"
	"testing"
	"time"

	"github.com/aaronromeo/inboxsync/ftest"
	"github.com/aaronromeo/inboxsync/internal/imap/sessionmanager"
	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T, window uint32, messages []ftest.Message) (*Client, *ftest.Server) {
	t.Helper()
	srv := ftest.SetupIMAPServer(t, []string{"Archive"}, messages)
	client := New(window,
		sessionmanager.WithAddr(srv.Addr),
		sessionmanager.WithTLSConfig(ftest.ClientTLSConfig()),
	)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, srv
}

func TestClientSharesConnection(t *testing.T) {
	client, _ := setupClient(t, 0, []ftest.Message{
		{MessageID: "a@example.com", From: "A <a@example.com>", To: "User <user@example.com>", Subject: "one", Body: "first"},
		{MessageID: "b@example.com", From: "B <b@example.com>", To: "User <user@example.com>", Subject: "two", Body: "second"},
	})
	creds := mailbox.Credentials{Username: ftest.DefaultUser, Password: ftest.DefaultPass}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	folders, err := client.ListFolders(ctx, creds)
	require.NoError(t, err)
	var inbox mailbox.Folder
	for _, f := range folders {
		if f.ID == "INBOX" {
			inbox = f
		}
	}
	require.False(t, inbox.IsZero())

	summaries, err := client.ListMessages(ctx, creds, inbox)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "b@example.com", summaries[0].MessageID)

	raws, err := client.FetchBodies(ctx, creds, inbox, []uint32{summaries[0].UID})
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "b@example.com", raws[0].MessageID)
	assert.Contains(t, string(raws[0].Literal), "second")
}

func TestClientWindow(t *testing.T) {
	msgs := make([]ftest.Message, 0, 5)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		msgs = append(msgs, ftest.Message{MessageID: id + "@example.com", From: "a@example.com", To: "user@example.com", Subject: id, Body: id})
	}
	client, _ := setupClient(t, 3, msgs)
	creds := mailbox.Credentials{Username: ftest.DefaultUser, Password: ftest.DefaultPass}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summaries, err := client.ListMessages(ctx, creds, mailbox.Folder{ID: "INBOX", Name: "INBOX"})
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "5@example.com", summaries[0].MessageID)
	assert.Equal(t, "3@example.com", summaries[2].MessageID)
}
