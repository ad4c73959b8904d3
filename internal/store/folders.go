// Package store holds the folder index and the per-folder message caches
// that the poller refreshes.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/pkg/errors"
)

// FolderLister lists the folders of the account.
type FolderLister interface {
	ListFolders(ctx context.Context, creds mailbox.Credentials) ([]mailbox.Folder, error)
}

// FolderStore keeps the folder index keyed by folder id.
type FolderStore struct {
	lister FolderLister
	logger *slog.Logger

	mu    sync.RWMutex
	index map[string]mailbox.Folder
}

func NewFolderStore(lister FolderLister, logger *slog.Logger) *FolderStore {
	return &FolderStore{
		lister: lister,
		logger: logger,
		index:  map[string]mailbox.Folder{},
	}
}

// Reload replaces the index with the server's folder list. The previous
// index is kept when listing fails.
func (s *FolderStore) Reload(ctx context.Context, creds mailbox.Credentials) error {
	folders, err := s.lister.ListFolders(ctx, creds)
	if err != nil {
		return errors.Wrap(err, "list folders")
	}

	index := make(map[string]mailbox.Folder, len(folders))
	for _, folder := range folders {
		if folder.ID == "" {
			continue
		}
		index[folder.ID] = folder
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "folder index reloaded", slog.Int("folders", len(index)))
	return nil
}

func (s *FolderStore) Get(id string) (mailbox.Folder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.index[id]
	return folder, ok
}

func (s *FolderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// List returns the folders sorted by name.
func (s *FolderStore) List() []mailbox.Folder {
	s.mu.RLock()
	folders := make([]mailbox.Folder, 0, len(s.index))
	for _, folder := range s.index {
		folders = append(folders, folder)
	}
	s.mu.RUnlock()

	sort.Slice(folders, func(i, j int) bool {
		return folders[i].Name < folders[j].Name
	})
	return folders
}
