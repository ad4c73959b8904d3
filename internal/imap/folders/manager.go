package folders

import (
	"context"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

// Runner runs commands on a logged-in connection.
type Runner interface {
	Do(ctx context.Context, creds mailbox.Credentials, fn func(*giimapclient.Client) error) error
}

type IMAPFolderManager struct {
	runner Runner
}

func New(runner Runner) *IMAPFolderManager {
	return &IMAPFolderManager{runner: runner}
}

// ListFolders lists every selectable mailbox with its counters. The
// mailbox name doubles as the folder id.
func (m *IMAPFolderManager) ListFolders(ctx context.Context, creds mailbox.Credentials) ([]mailbox.Folder, error) {
	var folders []mailbox.Folder
	err := m.runner.Do(ctx, creds, func(client *giimapclient.Client) error {
		listed, err := client.List("", "*", nil).Collect()
		if err != nil {
			return errors.Wrap(err, "LIST")
		}

		folders = make([]mailbox.Folder, 0, len(listed))
		for _, data := range listed {
			if err := ctx.Err(); err != nil {
				return err
			}
			if hasAttr(data.Attrs, imap.MailboxAttrNoSelect) || hasAttr(data.Attrs, imap.MailboxAttrNonExistent) {
				continue
			}

			folder := mailbox.Folder{
				ID:   data.Mailbox,
				Name: data.Mailbox,
			}
			if data.Delim != 0 {
				folder.Delimiter = string(data.Delim)
			}
			for _, attr := range data.Attrs {
				folder.Attributes = append(folder.Attributes, string(attr))
			}

			status, err := client.Status(data.Mailbox, &imap.StatusOptions{
				NumMessages: true,
				NumUnseen:   true,
				UIDValidity: true,
			}).Wait()
			if err != nil {
				return errors.Wrapf(err, "STATUS %q", data.Mailbox)
			}
			if status.NumMessages != nil {
				folder.Messages = *status.NumMessages
			}
			if status.NumUnseen != nil {
				folder.Unseen = *status.NumUnseen
			}
			folder.UIDValidity = status.UIDValidity

			folders = append(folders, folder)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}
