package imap

import (
	"github.com/aaronromeo/inboxsync/internal/imap/folders"
	"github.com/aaronromeo/inboxsync/internal/imap/messages"
	"github.com/aaronromeo/inboxsync/internal/imap/sessionmanager"
)

// Client shares one IMAP connection between the folder and message managers.
type Client struct {
	*sessionmanager.IMAPConnector
	*folders.IMAPFolderManager
	*messages.IMAPMessageManager
}

func New(window uint32, opts ...sessionmanager.Option) *Client {
	session := sessionmanager.New(opts...)
	return &Client{
		session,
		folders.New(session),
		messages.New(session, messages.WithWindow(window)),
	}
}
