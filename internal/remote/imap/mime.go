package imap

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/nhle/mailcore/internal/model"
)

// parseMIMEBody walks a raw RFC 2822 message and pulls out the plain
// and HTML bodies plus attachment metadata. The first part of each body
// kind wins; in multipart/alternative both alternatives are kept so the
// caller can choose. Attachment bytes are streamed to measure size,
// never buffered.
func parseMIMEBody(raw []byte) (textBody string, htmlBody string, attachments []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not parseable as MIME; keep the raw bytes as the text body.
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case textBody == "" && (contentType == "" || strings.HasPrefix(contentType, "text/plain")):
				textBody = string(body)
			case htmlBody == "" && strings.HasPrefix(contentType, "text/html"):
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if strings.TrimSpace(filename) == "" {
				filename = "attachment"
			}
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)

			attachments = append(attachments, model.Attachment{
				Filename:    filename,
				Size:        size,
				ContentType: contentType,
			})
		}
	}

	return textBody, htmlBody, attachments
}

// parseThreadingHeaders extracts In-Reply-To and References from raw
// header bytes. Identifiers come back without angle brackets.
func parseThreadingHeaders(raw []byte) (inReplyTo string, references []string) {
	hdr, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", nil
	}

	inReplyTo = normalizeMessageID(hdr.Get("In-Reply-To"))

	for _, tok := range strings.Fields(hdr.Get("References")) {
		if id := normalizeMessageID(tok); id != "" {
			references = append(references, id)
		}
	}

	return inReplyTo, references
}
