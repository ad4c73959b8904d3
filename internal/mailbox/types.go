// Package mailbox holds the data types shared by the stores, the preloader
// and the poller.
package mailbox

import (
	"strings"
	"time"
)

// Credentials authenticate against the IMAP server.
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

func (c Credentials) IsEmpty() bool {
	return strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password) == ""
}

// User identifies the account a session belongs to.
type User struct {
	Address     string      `json:"address"`
	Credentials Credentials `json:"-"`
}

// Folder describes a single IMAP mailbox as listed by the server.
type Folder struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Delimiter   string   `json:"delimiter,omitempty"`
	Attributes  []string `json:"attributes,omitempty"`
	Messages    uint32   `json:"messages"`
	Unseen      uint32   `json:"unseen"`
	UIDValidity uint32   `json:"uidValidity"`
}

func (f Folder) IsZero() bool {
	return f.ID == ""
}

// MessageSummary is the envelope-level view of a message kept in the cache.
// UID addresses the message inside its folder; MessageID is stable across
// folders and is what downloaded bodies are tracked by.
type MessageSummary struct {
	UID       uint32    `json:"uid"`
	MessageID string    `json:"messageId"`
	Subject   string    `json:"subject"`
	From      []string  `json:"from"`
	Date      time.Time `json:"date"`
	Seen      bool      `json:"seen"`
}

// RawMessage is a full message body fetched from the server.
type RawMessage struct {
	UID       uint32
	MessageID string
	Literal   []byte
}
