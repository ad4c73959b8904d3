package preload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlain(t *testing.T) {
	raw := "From: \"Ada\" <ada@example.com>\r\n" +
		"Subject: Status\r\n" +
		"Date: Tue, 05 Mar 2024 09:30:00 +0000\r\n" +
		"\r\n" +
		"All   systems\r\n  nominal.\r\n"

	parsed, err := Parse([]byte(raw), 100)
	require.NoError(t, err)
	assert.Equal(t, "Status", parsed.Subject)
	assert.Equal(t, "ada@example.com", parsed.From)
	assert.Equal(t, 2024, parsed.Date.Year())
	assert.Equal(t, "All systems nominal.", parsed.Preview)
}

func TestParseMultipartPrefersPlain(t *testing.T) {
	raw := "From: news@example.com\r\n" +
		"Subject: Digest\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Caf=E9 opens at nine\r\n" +
		"--XYZ--\r\n"

	parsed, err := Parse([]byte(raw), 100)
	require.NoError(t, err)
	assert.Equal(t, "Digest", parsed.Subject)
	assert.Equal(t, "Café opens at nine", parsed.Preview)
}

func TestParseTruncates(t *testing.T) {
	raw := "Subject: Long\r\n\r\n" + strings.Repeat("é", 50) + "\r\n"

	parsed, err := Parse([]byte(raw), 10)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), parsed.Preview)
}
