package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const webhookAnnouncePath = "/announcements"

type Option func(*webhookAnnouncer)

type Service interface {
	Preloaded(ctx context.Context, folder string, count int) error
}

func WithWebhookURL(webhookURL string) Option {
	return func(a *webhookAnnouncer) {
		a.baseURL = strings.TrimSpace(webhookURL)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(a *webhookAnnouncer) {
		a.client = client
	}
}

type webhookAnnouncer struct {
	baseURL string
	client  *http.Client
}

func New(opts ...Option) *webhookAnnouncer {
	a := &webhookAnnouncer{client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether a webhook URL is configured.
func (a *webhookAnnouncer) Enabled() bool {
	return a.baseURL != ""
}

// Preloaded posts a one line summary of a finished preload. It is a no-op
// without a webhook URL.
func (a *webhookAnnouncer) Preloaded(ctx context.Context, folder string, count int) error {
	if !a.Enabled() {
		return nil
	}
	message := fmt.Sprintf("preload: folder %q downloaded %d messages", folder, count)
	return a.post(ctx, message)
}

func (a *webhookAnnouncer) post(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}

	url := strings.TrimRight(a.baseURL, "/") + webhookAnnouncePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post announcement")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("reporting webhook returned status %s", resp.Status)
	}
	return nil
}
