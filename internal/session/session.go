// Package session holds the mailbox session state the poller reads from.
package session

import (
	"sync"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
)

// Snapshot is an immutable copy of the session fields.
type Snapshot struct {
	SelectedFolderID     string
	PollInterval         time.Duration
	DownloadedMessageIDs map[string]struct{}
	Credentials          mailbox.Credentials
	User                 mailbox.User
}

type Option func(*Session)

func WithUser(user mailbox.User) Option {
	return func(s *Session) {
		s.user = user
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		s.pollInterval = d
	}
}

func WithSelectedFolder(folderID string) Option {
	return func(s *Session) {
		s.selectedFolderID = folderID
	}
}

// Session is owned by the hosting application. Setters notify the registered
// change hooks after the lock is released.
type Session struct {
	mu               sync.RWMutex
	selectedFolderID string
	pollInterval     time.Duration
	downloaded       map[string]struct{}
	user             mailbox.User

	hooksMu sync.Mutex
	hooks   []func()
}

func New(opts ...Option) *Session {
	s := &Session{
		downloaded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	downloaded := make(map[string]struct{}, len(s.downloaded))
	for id := range s.downloaded {
		downloaded[id] = struct{}{}
	}
	return Snapshot{
		SelectedFolderID:     s.selectedFolderID,
		PollInterval:         s.pollInterval,
		DownloadedMessageIDs: downloaded,
		Credentials:          s.user.Credentials,
		User:                 s.user,
	}
}

func (s *Session) SelectedFolderID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedFolderID
}

func (s *Session) PollInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pollInterval
}

func (s *Session) DownloadedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.downloaded)
}

// SelectFolder changes the selected folder and notifies hooks when it changed.
func (s *Session) SelectFolder(folderID string) {
	s.mu.Lock()
	changed := s.selectedFolderID != folderID
	s.selectedFolderID = folderID
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetPollInterval ignores non-positive durations.
func (s *Session) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	changed := s.pollInterval != d
	s.pollInterval = d
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Session) SetUser(user mailbox.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.notify()
}

// MarkDownloaded records message ids whose body has been fetched in full.
func (s *Session) MarkDownloaded(messageIDs ...string) {
	s.mu.Lock()
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		s.downloaded[id] = struct{}{}
	}
	s.mu.Unlock()
}

// OnChange registers fn to run after every state change made through a setter.
func (s *Session) OnChange(fn func()) {
	if fn == nil {
		return
	}
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hooksMu.Unlock()
}

// Changed runs the change hooks. Used when state the hooks depend on changed
// outside the session, such as the folder index being populated.
func (s *Session) Changed() {
	s.notify()
}

func (s *Session) notify() {
	s.hooksMu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
