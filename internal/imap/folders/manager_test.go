package folders

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

func TestListFoldersLocalServer(t *testing.T) {
	srv := ftest.SetupIMAPServer(t, []string{"Archive", "Receipts"}, []ftest.Message{
		{MessageID: "a@example.com", From: "A <a@example.com>", To: "User <user@example.com>", Subject: "one", Body: "1"},
		{MessageID: "b@example.com", From: "B <b@example.com>", To: "User <user@example.com>", Subject: "two", Body: "2", Seen: true},
		{Mailbox: "Archive", MessageID: "c@example.com", From: "C <c@example.com>", To: "User <user@example.com>", Subject: "three", Body: "3"},
	})

	conn := sessionmanager.New(
		sessionmanager.WithAddr(srv.Addr),
		sessionmanager.WithTLSConfig(ftest.ClientTLSConfig()),
	)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	folders, err := New(conn).ListFolders(ctx, mailbox.Credentials{Username: ftest.DefaultUser, Password: ftest.DefaultPass})
	require.NoError(t, err)

	byID := map[string]mailbox.Folder{}
	for _, folder := range folders {
		byID[folder.ID] = folder
	}
	require.Len(t, byID, 3)

	inbox := byID["INBOX"]
	assert.Equal(t, "INBOX", inbox.Name)
	assert.Equal(t, uint32(2), inbox.Messages)
	assert.Equal(t, uint32(1), inbox.Unseen)
	assert.NotZero(t, inbox.UIDValidity)

	assert.Equal(t, uint32(1), byID["Archive"].Messages)
	assert.Equal(t, uint32(0), byID["Receipts"].Messages)
}

func TestListFoldersBadCredentials(t *testing.T) {
	srv := ftest.SetupIMAPServer(t, nil, nil)
	conn := sessionmanager.New(
		sessionmanager.WithAddr(srv.Addr),
		sessionmanager.WithTLSConfig(ftest.ClientTLSConfig()),
	)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	_, err := New(conn).ListFolders(ctx, mailbox.Credentials{Username: ftest.DefaultUser, Password: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
}
