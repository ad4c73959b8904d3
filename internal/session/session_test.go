package session

import (
	"testing"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotIsACopy(t *testing.T) {
	s := New(WithSelectedFolder("INBOX"), WithPollInterval(time.Minute))
	s.MarkDownloaded("<a@example.com>")

	snap := s.Snapshot()
	s.MarkDownloaded("<b@example.com>")

	assert.Contains(t, snap.DownloadedMessageIDs, "<a@example.com>")
	assert.NotContains(t, snap.DownloadedMessageIDs, "<b@example.com>")
	assert.Equal(t, 2, s.DownloadedCount())
	assert.Equal(t, "INBOX", snap.SelectedFolderID)
	assert.Equal(t, time.Minute, snap.PollInterval)
}

func TestMarkDownloadedSkipsEmptyIDs(t *testing.T) {
	s := New()
	s.MarkDownloaded("", "<a@example.com>")
	assert.Equal(t, 1, s.DownloadedCount())
}

func TestHooksFireOnlyOnChange(t *testing.T) {
	s := New(WithSelectedFolder("INBOX"), WithPollInterval(time.Minute))
	calls := 0
	s.OnChange(func() { calls++ })

	s.SelectFolder("INBOX")
	s.SetPollInterval(time.Minute)
	s.SetPollInterval(0)
	assert.Equal(t, 0, calls)

	s.SelectFolder("Archive")
	s.SetPollInterval(2 * time.Minute)
	s.Changed()
	assert.Equal(t, 3, calls)
	assert.Equal(t, "Archive", s.SelectedFolderID())
	assert.Equal(t, 2*time.Minute, s.PollInterval())
}

func TestSnapshotCarriesUserCredentials(t *testing.T) {
	user := mailbox.User{
		Address:     "user@example.com",
		Credentials: mailbox.Credentials{Username: "user@example.com", Password: "secret"},
	}
	s := New(WithUser(user))

	snap := s.Snapshot()
	assert.Equal(t, user, snap.User)
	assert.Equal(t, user.Credentials, snap.Credentials)
}

func TestHookMaySetState(t *testing.T) {
	s := New()
	s.OnChange(func() {
		// hooks run without the session lock held
		_ = s.Snapshot()
	})
	s.SetUser(mailbox.User{Address: "user@example.com"})
}
