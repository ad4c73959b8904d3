package preload

import (
	"bytes"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Parsed is the header and text preview of a raw message.
type Parsed struct {
	Subject string
	From    string
	Date    time.Time
	Preview string
}

// Parse reads the headers of raw and the first text/plain part, trimmed to
// limit runes. Malformed bodies still yield whatever headers were readable.
func Parse(raw []byte, limit int) (Parsed, error) {
	var out Parsed

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return out, err
	}
	defer mr.Close()

	out.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		out.From = from[0].Address
	}
	out.Date, _ = mr.Header.Date()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return out, err
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType != "" && contentType != "text/plain" {
			continue
		}

		max := int64(limit) * utf8.UTFMax
		if limit <= 0 {
			max = 1 << 20
		}
		text, err := io.ReadAll(io.LimitReader(part.Body, max))
		if err != nil {
			return out, err
		}
		out.Preview = truncate(strings.Join(strings.Fields(string(text)), " "), limit)
		break
	}
	return out, nil
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
