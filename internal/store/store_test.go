package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/aaronromeo/inboxsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFolderLister struct {
	folders []mailbox.Folder
	err     error
	creds   mailbox.Credentials
}

func (s *stubFolderLister) ListFolders(_ context.Context, creds mailbox.Credentials) ([]mailbox.Folder, error) {
	s.creds = creds
	return s.folders, s.err
}

type stubMessageLister struct {
	messages map[string][]mailbox.MessageSummary
	err      error
}

func (s *stubMessageLister) ListMessages(_ context.Context, _ mailbox.Credentials, folder mailbox.Folder) ([]mailbox.MessageSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages[folder.ID], nil
}

func TestFolderStoreReload(t *testing.T) {
	lister := &stubFolderLister{folders: []mailbox.Folder{
		{ID: "INBOX", Name: "INBOX"},
		{ID: "Archive", Name: "Archive"},
		{ID: "", Name: "ignored"},
	}}
	s := NewFolderStore(lister, testutil.SetupLogger(t))
	creds := mailbox.Credentials{Username: "u", Password: "p"}

	require.NoError(t, s.Reload(context.Background(), creds))
	assert.Equal(t, creds, lister.creds)
	assert.Equal(t, 2, s.Len())

	folder, ok := s.Get("INBOX")
	assert.True(t, ok)
	assert.Equal(t, "INBOX", folder.Name)

	names := []string{}
	for _, f := range s.List() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Archive", "INBOX"}, names)
}

func TestFolderStoreKeepsIndexOnFailure(t *testing.T) {
	lister := &stubFolderLister{folders: []mailbox.Folder{{ID: "INBOX", Name: "INBOX"}}}
	s := NewFolderStore(lister, testutil.SetupLogger(t))
	require.NoError(t, s.Reload(context.Background(), mailbox.Credentials{}))

	lister.err = errors.New("connection refused")
	err := s.Reload(context.Background(), mailbox.Credentials{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list folders")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, s.Len())
}

func TestMessageCacheStoreReload(t *testing.T) {
	lister := &stubMessageLister{messages: map[string][]mailbox.MessageSummary{
		"INBOX": {{UID: 3, MessageID: "<c>"}, {UID: 2, MessageID: "<b>"}},
	}}
	s := NewMessageCacheStore(lister, testutil.SetupLogger(t))

	_, ok := s.Messages("INBOX")
	assert.False(t, ok)

	require.NoError(t, s.Reload(context.Background(), mailbox.User{}, mailbox.Folder{ID: "INBOX", UIDValidity: 1}))
	msgs, ok := s.Messages("INBOX")
	require.True(t, ok)
	assert.Equal(t, []uint32{3, 2}, []uint32{msgs[0].UID, msgs[1].UID})

	// callers get a copy
	msgs[0].UID = 99
	again, _ := s.Messages("INBOX")
	assert.Equal(t, uint32(3), again[0].UID)

	assert.Equal(t, map[string]int{"INBOX": 2}, s.Sizes())

	s.Invalidate("INBOX")
	_, ok = s.Messages("INBOX")
	assert.False(t, ok)
}

func TestMessageCacheStoreRejectsZeroFolder(t *testing.T) {
	s := NewMessageCacheStore(&stubMessageLister{}, testutil.SetupLogger(t))
	err := s.Reload(context.Background(), mailbox.User{}, mailbox.Folder{})
	assert.ErrorIs(t, err, ErrNoFolder)
}

func TestMessageCacheStoreKeepsEntryOnFailure(t *testing.T) {
	lister := &stubMessageLister{messages: map[string][]mailbox.MessageSummary{
		"INBOX": {{UID: 1}},
	}}
	s := NewMessageCacheStore(lister, testutil.SetupLogger(t))
	folder := mailbox.Folder{ID: "INBOX"}
	require.NoError(t, s.Reload(context.Background(), mailbox.User{}, folder))

	lister.err = errors.New("timeout")
	err := s.Reload(context.Background(), mailbox.User{}, folder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `list messages in "INBOX"`)

	msgs, ok := s.Messages("INBOX")
	assert.True(t, ok)
	assert.Len(t, msgs, 1)
}
