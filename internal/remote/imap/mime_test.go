package imap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcore/internal/model"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMIMEBodyPlainText(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: me@example.com
Subject: Hello
Content-Type: text/plain; charset=utf-8

Lunch on Friday?
`)

	text, html, attachments := parseMIMEBody(raw)
	assert.Equal(t, "Lunch on Friday?", strings.TrimSpace(text))
	assert.Empty(t, html)
	assert.Empty(t, attachments)
}

func TestParseMIMEBodyMultipartAlternative(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: me@example.com
Subject: Hello
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

Plain version.
--BOUNDARY
Content-Type: text/html; charset=utf-8

<p>HTML version.</p>
--BOUNDARY--
`)

	text, html, attachments := parseMIMEBody(raw)
	assert.Equal(t, "Plain version.", strings.TrimSpace(text))
	assert.Equal(t, "<p>HTML version.</p>", strings.TrimSpace(html))
	assert.Empty(t, attachments)
}

func TestParseMIMEBodyAttachmentMetadata(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: me@example.com
Subject: Report attached
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

See attached.
--BOUNDARY
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"

%PDF-1.4 fake content
--BOUNDARY--
`)

	text, _, attachments := parseMIMEBody(raw)
	assert.Equal(t, "See attached.", strings.TrimSpace(text))
	require.Len(t, attachments, 1)
	assert.Equal(t, "report.pdf", attachments[0].Filename)
	assert.Equal(t, "application/pdf", attachments[0].ContentType)
	assert.Greater(t, attachments[0].Size, int64(0))
}

func TestParseMIMEBodyFirstTextPartWins(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: me@example.com
Subject: Digest
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

Primary body.
--BOUNDARY
Content-Type: text/plain; charset=utf-8

Trailing signature part.
--BOUNDARY--
`)

	text, _, _ := parseMIMEBody(raw)
	assert.Equal(t, "Primary body.", strings.TrimSpace(text))
}

func TestParseMIMEBodyAnonymousAttachment(t *testing.T) {
	raw := crlf(`From: alice@example.com
To: me@example.com
Subject: Blob
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

See attached.
--BOUNDARY
Content-Type: application/octet-stream
Content-Disposition: attachment

binarybytes
--BOUNDARY--
`)

	_, _, attachments := parseMIMEBody(raw)
	require.Len(t, attachments, 1)
	assert.Equal(t, "attachment", attachments[0].Filename)
	assert.Equal(t, "application/octet-stream", attachments[0].ContentType)
	assert.Greater(t, attachments[0].Size, int64(0))
}

func TestParseMIMEBodyUnparseableFallsBackToRaw(t *testing.T) {
	raw := []byte("not a mime message at all")

	text, html, attachments := parseMIMEBody(raw)
	assert.Equal(t, "not a mime message at all", text)
	assert.Empty(t, html)
	assert.Empty(t, attachments)
}

func TestParseThreadingHeaders(t *testing.T) {
	raw := crlf(`In-Reply-To: <parent@example.com>
References: <root@example.com> <parent@example.com>

`)

	inReplyTo, references := parseThreadingHeaders(raw)
	assert.Equal(t, "parent@example.com", inReplyTo)
	assert.Equal(t, []string{"root@example.com", "parent@example.com"}, references)
}

func TestParseThreadingHeadersAbsent(t *testing.T) {
	raw := crlf(`Subject: standalone

`)

	inReplyTo, references := parseThreadingHeaders(raw)
	assert.Empty(t, inReplyTo)
	assert.Nil(t, references)
}

func TestNormalizeMessageID(t *testing.T) {
	cases := map[string]string{
		"<id@example.com>":   "id@example.com",
		"id@example.com":     "id@example.com",
		" <id@example.com> ": "id@example.com",
		"":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeMessageID(in))
	}
}

func TestFlagConversionRoundTrip(t *testing.T) {
	flags := []model.Flag{model.FlagSeen, model.FlagFlagged, model.FlagAnswered}

	back := fromIMAPFlags(toIMAPFlags(flags))
	assert.ElementsMatch(t, flags, back)
}
