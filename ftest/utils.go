package ftest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	giimapserver "github.com/emersion/go-imap/v2/imapserver"
	giimapmemserver "github.com/emersion/go-imap/v2/imapserver/imapmemserver"
)

const (
	DefaultUser = "user@example.com"
	DefaultPass = "password"
)

type Message struct {
	Mailbox   string
	MessageID string
	From      string
	To        string
	Subject   string
	Body      string
	Time      time.Time
	Seen      bool
}

// Server is an in-memory IMAP server listening on a loopback TLS socket.
type Server struct {
	Addr string

	user *giimapmemserver.User
	t    *testing.T
}

// ClientTLSConfig accepts the server's self-signed certificate.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec
}

// SetupIMAPServer starts a server with INBOX, the extra mailboxes and the
// given messages. It is closed when the test ends.
func SetupIMAPServer(t *testing.T, mailboxes []string, messages []Message) *Server {
	t.Helper()

	tlsConfig := testTLSConfig(t)
	mem := giimapmemserver.New()
	user := giimapmemserver.NewUser(DefaultUser, DefaultPass)
	mem.AddUser(user)

	if err := user.Create("INBOX", nil); err != nil {
		t.Fatalf("create mailbox: %v", err)
	}
	for _, mailbox := range mailboxes {
		if strings.TrimSpace(mailbox) == "" || mailbox == "INBOX" {
			continue
		}
		if err := user.Create(mailbox, nil); err != nil {
			t.Fatalf("create mailbox %q: %v", mailbox, err)
		}
	}

	srv := &Server{user: user, t: t}
	for _, msg := range messages {
		srv.Append(msg)
	}

	server := giimapserver.New(&giimapserver.Options{
		NewSession: func(*giimapserver.Conn) (giimapserver.Session, *giimapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		TLSConfig:    tlsConfig,
		InsecureAuth: true,
	})

	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	t.Cleanup(func() {
		_ = server.Close()
		_ = ln.Close()
		select {
		case <-errCh:
		default:
		}
	})

	srv.Addr = ln.Addr().String()
	return srv
}

// Append stores msg and returns its UID.
func (s *Server) Append(msg Message) uint32 {
	s.t.Helper()

	mailbox := strings.TrimSpace(msg.Mailbox)
	if mailbox == "" {
		mailbox = "INBOX"
	}
	appendTime := msg.Time
	if appendTime.IsZero() {
		appendTime = time.Now()
	}
	options := &imap.AppendOptions{Time: appendTime}
	if msg.Seen {
		options.Flags = []imap.Flag{imap.FlagSeen}
	}

	data, err := s.user.Append(mailbox, newLiteral(RawMessage(msg)), options)
	if err != nil {
		s.t.Fatalf("append message: %v", err)
	}
	return uint32(data.UID)
}

// RawMessage renders msg as an RFC 5322 message.
func RawMessage(msg Message) string {
	date := msg.Time
	if date.IsZero() {
		date = time.Now()
	}

	builder := &strings.Builder{}
	fmt.Fprintf(builder, "Message-ID: <%s>\r\n", msg.MessageID)
	fmt.Fprintf(builder, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(builder, "From: %s\r\n", msg.From)
	fmt.Fprintf(builder, "To: %s\r\n", msg.To)
	fmt.Fprintf(builder, "Subject: %s\r\n", msg.Subject)
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(msg.Body)
	builder.WriteString("\r\n")
	return builder.String()
}

type literalReader struct {
	*bytes.Reader
	size int64
}

func newLiteral(raw string) imap.LiteralReader {
	buf := []byte(raw)
	return &literalReader{
		Reader: bytes.NewReader(buf),
		size:   int64(len(buf)),
	}
}

func (lr *literalReader) Size() int64 {
	return lr.size
}

func testTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("generate serial: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"imap"},
	}
}
