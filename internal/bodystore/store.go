// Package bodystore persists preloaded message bodies.
package bodystore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidBody = errors.New("body needs an account and a message id")

// Body is one downloaded message.
type Body struct {
	Account   string
	FolderID  string
	UID       uint32
	MessageID string
	Subject   string
	From      string
	Date      time.Time
	Preview   string
	Raw       []byte
	SavedAt   time.Time
}

func (b Body) validate() error {
	if strings.TrimSpace(b.Account) == "" || strings.TrimSpace(b.MessageID) == "" {
		return ErrInvalidBody
	}
	return nil
}

type Store interface {
	Save(ctx context.Context, body Body) error
	Has(ctx context.Context, account, messageID string) (bool, error)
	Get(ctx context.Context, account, messageID string) (Body, bool, error)
	DownloadedIDs(ctx context.Context, account string) ([]string, error)
	Close() error
}

// Multi writes to every store and reads from the first one.
type Multi struct {
	stores []Store
}

func NewMulti(primary Store, rest ...Store) *Multi {
	return &Multi{stores: append([]Store{primary}, rest...)}
}

func (m *Multi) Save(ctx context.Context, body Body) error {
	var errs []string
	for _, s := range m.stores {
		if err := s.Save(ctx, body); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("save %s: %s", body.MessageID, strings.Join(errs, "; "))
	}
	return nil
}

func (m *Multi) Has(ctx context.Context, account, messageID string) (bool, error) {
	return m.stores[0].Has(ctx, account, messageID)
}

func (m *Multi) Get(ctx context.Context, account, messageID string) (Body, bool, error) {
	return m.stores[0].Get(ctx, account, messageID)
}

func (m *Multi) DownloadedIDs(ctx context.Context, account string) ([]string, error) {
	return m.stores[0].DownloadedIDs(ctx, account)
}

func (m *Multi) Close() error {
	var errs []string
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
