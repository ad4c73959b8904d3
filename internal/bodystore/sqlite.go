package bodystore

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLite keeps bodies in a local database file.
type SQLite struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the database at path.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create database dir")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, errors.Wrap(err, "create database file")
		}
		f.Close()
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "open database")
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dsn carries the pragmas in the connection string so every pooled
// connection gets them, not only the one that happened to run a PRAGMA.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLite) migrate(ctx context.Context) error {
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)

	// v1: bodies
	if ver == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bodies (
  account     TEXT NOT NULL,
  message_id  TEXT NOT NULL,
  folder_id   TEXT NOT NULL,
  uid         INTEGER NOT NULL,
  subject     TEXT NOT NULL DEFAULT '',
  sender      TEXT NOT NULL DEFAULT '',
  sent_at     INTEGER NOT NULL DEFAULT 0,
  raw         BLOB NOT NULL,
  saved_at    INTEGER NOT NULL,
  PRIMARY KEY (account, message_id)
);
`)
		if err == nil {
			_, err = tx.ExecContext(ctx, "PRAGMA user_version=1;")
		}
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "migrate v1")
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver = 1
	}

	// v2: text preview
	if ver == 1 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `ALTER TABLE bodies ADD COLUMN preview TEXT NOT NULL DEFAULT '';`)
		if err == nil {
			_, err = tx.ExecContext(ctx, "PRAGMA user_version=2;")
		}
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "migrate v2")
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Save upserts body keyed by (account, message id).
func (s *SQLite) Save(ctx context.Context, body Body) error {
	if err := body.validate(); err != nil {
		return err
	}
	savedAt := body.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	raw := body.Raw
	if raw == nil {
		raw = []byte{}
	}
	var sentAt int64
	if !body.Date.IsZero() {
		sentAt = body.Date.Unix()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO bodies(account, message_id, folder_id, uid, subject, sender, sent_at, raw, preview, saved_at)
VALUES(?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(account, message_id) DO UPDATE SET
  folder_id=excluded.folder_id, uid=excluded.uid, subject=excluded.subject, sender=excluded.sender,
  sent_at=excluded.sent_at, raw=excluded.raw, preview=excluded.preview, saved_at=excluded.saved_at;
`, body.Account, body.MessageID, body.FolderID, body.UID, body.Subject, body.From, sentAt, raw, body.Preview, savedAt.Unix())
	return errors.Wrapf(err, "save body %s", body.MessageID)
}

func (s *SQLite) Has(ctx context.Context, account, messageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM bodies WHERE account=? AND message_id=?`, account, messageID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) Get(ctx context.Context, account, messageID string) (Body, bool, error) {
	var (
		body    Body
		sentAt  int64
		savedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT account, message_id, folder_id, uid, subject, sender, sent_at, raw, preview, saved_at
FROM bodies WHERE account=? AND message_id=?`, account, messageID).Scan(
		&body.Account, &body.MessageID, &body.FolderID, &body.UID, &body.Subject, &body.From,
		&sentAt, &body.Raw, &body.Preview, &savedAt)
	if err == sql.ErrNoRows {
		return Body{}, false, nil
	}
	if err != nil {
		return Body{}, false, err
	}
	if sentAt != 0 {
		body.Date = time.Unix(sentAt, 0)
	}
	body.SavedAt = time.Unix(savedAt, 0)
	return body, true, nil
}

// DownloadedIDs lists every message id stored for account.
func (s *SQLite) DownloadedIDs(ctx context.Context, account string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM bodies WHERE account=? ORDER BY saved_at DESC`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
