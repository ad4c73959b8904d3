package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/aaronromeo/inboxsync/internal/poller"
	"github.com/aaronromeo/inboxsync/internal/preload"
	"github.com/aaronromeo/inboxsync/internal/session"
	"github.com/aaronromeo/inboxsync/internal/store"
	"github.com/aaronromeo/inboxsync/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPoller struct {
	state  poller.State
	report *poller.CycleReport
}

func (s stubPoller) State() poller.State { return s.state }

func (s stubPoller) LastCycle() (poller.CycleReport, bool) {
	if s.report == nil {
		return poller.CycleReport{}, false
	}
	return *s.report, true
}

type stubStats struct{}

func (stubStats) Stats() preload.Stats { return preload.Stats{Requested: 4, Saved: 12} }

type lister struct{}

func (lister) ListFolders(context.Context, mailbox.Credentials) ([]mailbox.Folder, error) {
	return []mailbox.Folder{
		{ID: "INBOX", Name: "INBOX", Messages: 2},
		{ID: "Archive/2024", Name: "Archive/2024"},
	}, nil
}

func (lister) ListMessages(_ context.Context, _ mailbox.Credentials, folder mailbox.Folder) ([]mailbox.MessageSummary, error) {
	return []mailbox.MessageSummary{
		{UID: 2, MessageID: "b@example.com", Subject: "second"},
		{UID: 1, MessageID: "a@example.com", Subject: "first"},
	}, nil
}

type fixture struct {
	app     *fiber.App
	session *session.Session
}

func setup(t *testing.T) fixture {
	t.Helper()
	logger := testutil.SetupLogger(t)

	folders := store.NewFolderStore(lister{}, logger)
	require.NoError(t, folders.Reload(context.Background(), mailbox.Credentials{}))
	messages := store.NewMessageCacheStore(lister{}, logger)
	inbox, _ := folders.Get("INBOX")
	require.NoError(t, messages.Reload(context.Background(), mailbox.User{}, inbox))

	sess := session.New(session.WithSelectedFolder("INBOX"), session.WithPollInterval(45*time.Second))
	sess.MarkDownloaded("a@example.com")

	report := &poller.CycleReport{FolderID: "INBOX", Candidates: 1, Preloaded: true}
	app := NewApp(&Handlers{
		Poller:   stubPoller{state: poller.Running, report: report},
		Folders:  folders,
		Messages: messages,
		Session:  sess,
		Preload:  stubStats{},
		Logger:   logger,
	})
	return fixture{app: app, session: sess}
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	code, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))
}

func TestStatus(t *testing.T) {
	f := setup(t)
	code, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, code)

	var status Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, "INBOX", status.Folder)
	assert.Equal(t, "45s", status.PollInterval)
	assert.Equal(t, 1, status.Downloaded)
	assert.Equal(t, 2, status.FolderIndexLen)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, 1, status.LastCycle.Candidates)
	require.NotNil(t, status.Preload)
	assert.Equal(t, int64(12), status.Preload.Saved)
	assert.Equal(t, map[string]int{"INBOX": 2}, status.Cached)
}

func TestListFolders(t *testing.T) {
	f := setup(t)
	code, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/folders", nil))
	require.Equal(t, http.StatusOK, code)

	var folders []mailbox.Folder
	require.NoError(t, json.Unmarshal(body, &folders))
	require.Len(t, folders, 2)
	assert.Equal(t, "Archive/2024", folders[0].ID)
	assert.Equal(t, "INBOX", folders[1].ID)
}

func TestFolderMessages(t *testing.T) {
	f := setup(t)
	code, body := do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/folders/INBOX/messages", nil))
	require.Equal(t, http.StatusOK, code)

	var messages []mailbox.MessageSummary
	require.NoError(t, json.Unmarshal(body, &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, uint32(2), messages[0].UID)

	code, body = do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/folders/Archive%2F2024/messages", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(body), "Archive/2024 is not cached")
}

func TestDropFolderMessages(t *testing.T) {
	f := setup(t)

	code, _ := do(t, f.app, httptest.NewRequest(http.MethodDelete, "/api/folders/INBOX/messages", nil))
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, f.app, httptest.NewRequest(http.MethodGet, "/api/folders/INBOX/messages", nil))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSelectFolder(t *testing.T) {
	f := setup(t)

	changed := make(chan struct{}, 1)
	f.session.OnChange(func() { changed <- struct{}{} })

	req := httptest.NewRequest(http.MethodPut, "/api/session/folder", strings.NewReader(`{"folder":"Archive/2024"}`))
	req.Header.Set("Content-Type", "application/json")
	code, _ := do(t, f.app, req)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "Archive/2024", f.session.SelectedFolderID())

	select {
	case <-changed:
	default:
		t.Fatal("expected session change hook to fire")
	}
}

func TestSelectFolderRejects(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{name: "empty", body: `{"folder":"  "}`, code: http.StatusBadRequest},
		{name: "unknown", body: `{"folder":"Nope"}`, code: http.StatusNotFound},
		{name: "malformed", body: `{`, code: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/session/folder", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			code, body := do(t, f.app, req)
			assert.Equal(t, tc.code, code)
			assert.Contains(t, string(body), `"error"`)
			assert.Equal(t, "INBOX", f.session.SelectedFolderID())
		})
	}
}

func TestNotFound(t *testing.T) {
	f := setup(t)
	code, _ := do(t, f.app, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, code)
}
