package imap

import (
	"context"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
)

// Mailstore is everything the sync stack reads from the server.
type Mailstore interface {
	ListFolders(ctx context.Context, creds mailbox.Credentials) ([]mailbox.Folder, error)
	ListMessages(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder) ([]mailbox.MessageSummary, error)
	FetchBodies(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder, uids []uint32) ([]mailbox.RawMessage, error)
	Close() error
}

var _ Mailstore = (*Client)(nil)
