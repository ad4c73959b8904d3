package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/pkg/errors"
)

// ErrNoFolder is returned when a reload is requested without a folder.
var ErrNoFolder = errors.New("no folder to reload")

// MessageLister returns the newest messages of a folder, newest first.
type MessageLister interface {
	ListMessages(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder) ([]mailbox.MessageSummary, error)
}

type folderCache struct {
	uidValidity uint32
	messages    []mailbox.MessageSummary
}

// MessageCacheStore keeps one ordered message list per folder.
type MessageCacheStore struct {
	lister MessageLister
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]folderCache
}

func NewMessageCacheStore(lister MessageLister, logger *slog.Logger) *MessageCacheStore {
	return &MessageCacheStore{
		lister: lister,
		logger: logger,
		cache:  map[string]folderCache{},
	}
}

// Reload refreshes the cache entry of folder for user. On failure the
// previous entry is left untouched.
func (s *MessageCacheStore) Reload(ctx context.Context, user mailbox.User, folder mailbox.Folder) error {
	if folder.IsZero() {
		return ErrNoFolder
	}

	messages, err := s.lister.ListMessages(ctx, user.Credentials, folder)
	if err != nil {
		return errors.Wrapf(err, "list messages in %q", folder.ID)
	}

	s.mu.Lock()
	prev, had := s.cache[folder.ID]
	s.cache[folder.ID] = folderCache{
		uidValidity: folder.UIDValidity,
		messages:    messages,
	}
	s.mu.Unlock()

	if had && prev.uidValidity != 0 && prev.uidValidity != folder.UIDValidity {
		s.logger.InfoContext(ctx, "folder uid validity changed, cache replaced",
			slog.String("folder", folder.ID),
			slog.Any("previous", prev.uidValidity),
			slog.Any("current", folder.UIDValidity))
	}
	s.logger.DebugContext(ctx, "message cache reloaded",
		slog.String("folder", folder.ID),
		slog.Int("messages", len(messages)))
	return nil
}

// Messages returns a copy of the cached summaries for folderID.
func (s *MessageCacheStore) Messages(folderID string) ([]mailbox.MessageSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[folderID]
	if !ok {
		return nil, false
	}
	out := make([]mailbox.MessageSummary, len(entry.messages))
	copy(out, entry.messages)
	return out, true
}

// Invalidate drops the cache entry of folderID.
func (s *MessageCacheStore) Invalidate(folderID string) {
	s.mu.Lock()
	delete(s.cache, folderID)
	s.mu.Unlock()
}

// Sizes returns the number of cached messages per folder.
func (s *MessageCacheStore) Sizes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.cache))
	for id, entry := range s.cache {
		out[id] = len(entry.messages)
	}
	return out
}
