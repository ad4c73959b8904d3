package messages

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/aaronromeo/inboxsync/internal/mailbox"
	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

// DefaultWindow is how many of the newest messages are listed per folder.
const DefaultWindow = 200

// Runner runs commands on a logged-in connection.
type Runner interface {
	Do(ctx context.Context, creds mailbox.Credentials, fn func(*giimapclient.Client) error) error
}

type Option func(*IMAPMessageManager)

func WithWindow(n uint32) Option {
	return func(m *IMAPMessageManager) {
		if n > 0 {
			m.window = n
		}
	}
}

type IMAPMessageManager struct {
	runner Runner
	window uint32
}

func New(runner Runner, opts ...Option) *IMAPMessageManager {
	m := &IMAPMessageManager{runner: runner, window: DefaultWindow}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListMessages returns the envelopes of the newest messages in folder,
// newest first.
func (m *IMAPMessageManager) ListMessages(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder) ([]mailbox.MessageSummary, error) {
	if strings.TrimSpace(folder.Name) == "" {
		return nil, errors.New("mailbox is required")
	}

	summaries := []mailbox.MessageSummary{}
	err := m.runner.Do(ctx, creds, func(client *giimapclient.Client) error {
		selected, err := client.Select(folder.Name, &imap.SelectOptions{ReadOnly: true}).Wait()
		if err != nil {
			return errors.Wrapf(err, "EXAMINE %q", folder.Name)
		}
		if selected.NumMessages == 0 {
			return nil
		}

		var first uint32 = 1
		if selected.NumMessages > m.window {
			first = selected.NumMessages - m.window + 1
		}
		var seqSet imap.SeqSet
		seqSet.AddRange(first, selected.NumMessages)

		fetchCmd := client.Fetch(seqSet, &imap.FetchOptions{
			UID:          true,
			Envelope:     true,
			Flags:        true,
			InternalDate: true,
		})
		for {
			if err := ctx.Err(); err != nil {
				_ = fetchCmd.Close()
				return err
			}

			msg := fetchCmd.Next()
			if msg == nil {
				break
			}

			var summary mailbox.MessageSummary
			var internalDate giimapclient.FetchItemDataInternalDate
			for {
				item := msg.Next()
				if item == nil {
					break
				}
				switch data := item.(type) {
				case giimapclient.FetchItemDataUID:
					summary.UID = uint32(data.UID)
				case giimapclient.FetchItemDataFlags:
					summary.Seen = hasFlag(data.Flags, imap.FlagSeen)
				case giimapclient.FetchItemDataInternalDate:
					internalDate = data
				case giimapclient.FetchItemDataEnvelope:
					applyEnvelope(&summary, data.Envelope)
				}
			}
			if summary.UID == 0 {
				continue
			}
			if summary.Date.IsZero() {
				summary.Date = internalDate.Time
			}
			summaries = append(summaries, summary)
		}

		return errors.Wrap(fetchCmd.Close(), "FETCH envelopes")
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UID > summaries[j].UID
	})
	return summaries, nil
}

// FetchBodies downloads the full bodies of uids without setting \Seen.
func (m *IMAPMessageManager) FetchBodies(ctx context.Context, creds mailbox.Credentials, folder mailbox.Folder, uids []uint32) ([]mailbox.RawMessage, error) {
	if len(uids) == 0 {
		return []mailbox.RawMessage{}, nil
	}
	if strings.TrimSpace(folder.Name) == "" {
		return nil, errors.New("mailbox is required")
	}

	var uidSet imap.UIDSet
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	raws := make([]mailbox.RawMessage, 0, len(uids))
	err := m.runner.Do(ctx, creds, func(client *giimapclient.Client) error {
		if _, err := client.Select(folder.Name, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			return errors.Wrapf(err, "EXAMINE %q", folder.Name)
		}

		fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
			UID:         true,
			Envelope:    true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		})
		for {
			if err := ctx.Err(); err != nil {
				_ = fetchCmd.Close()
				return err
			}

			msg := fetchCmd.Next()
			if msg == nil {
				break
			}

			var raw mailbox.RawMessage
			for {
				item := msg.Next()
				if item == nil {
					break
				}
				switch data := item.(type) {
				case giimapclient.FetchItemDataUID:
					raw.UID = uint32(data.UID)
				case giimapclient.FetchItemDataEnvelope:
					if data.Envelope != nil {
						raw.MessageID = NormalizeMessageID(data.Envelope.MessageID)
					}
				case giimapclient.FetchItemDataBodySection:
					if data.Literal == nil {
						continue
					}
					b, err := io.ReadAll(data.Literal)
					if err != nil {
						_ = fetchCmd.Close()
						return errors.Wrapf(err, "read body of uid %d", raw.UID)
					}
					raw.Literal = b
				}
			}
			if raw.UID == 0 || raw.Literal == nil {
				continue
			}
			raws = append(raws, raw)
		}

		return errors.Wrap(fetchCmd.Close(), "FETCH bodies")
	})
	if err != nil {
		return nil, err
	}
	return raws, nil
}

// NormalizeMessageID strips surrounding whitespace and angle brackets.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	return strings.TrimSuffix(id, ">")
}

func applyEnvelope(summary *mailbox.MessageSummary, envelope *imap.Envelope) {
	if envelope == nil {
		return
	}
	summary.MessageID = NormalizeMessageID(envelope.MessageID)
	summary.Subject = strings.TrimSpace(envelope.Subject)
	summary.Date = envelope.Date
	for _, addr := range envelope.From {
		summary.From = append(summary.From, addr.Addr())
	}
}

func hasFlag(flags []imap.Flag, want imap.Flag) bool {
	for _, flag := range flags {
		if flag == want {
			return true
		}
	}
	return false
}
