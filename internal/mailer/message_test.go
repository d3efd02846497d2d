package mailer

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLBody(t *testing.T) {
	assert.Equal(t, "Hello<br>world<br><br>Thanks", HTMLBody("Hello\nworld\r\n\nThanks"))
	assert.Equal(t, "single line", HTMLBody("single line"))
}

func TestBuildMIME_WithAttachment(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake resume bytes\x00\x01\x02")
	raw, err := BuildMIME(Email{
		To:      "hr@acme.test",
		Subject: "Application: Backend Engineer",
		HTML:    HTMLBody("Hi,\nplease find my CV attached."),
		Attachment: &Attachment{
			Filename:    "cv.pdf",
			ContentType: "application/pdf",
			Data:        base64.StdEncoding.EncodeToString(pdf),
		},
	})
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Application: Backend Engineer", subject)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "hr@acme.test", to[0].Address)
	mediaType, _, err := mr.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	var parts int
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		parts++
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, params, err := h.ContentType()
			require.NoError(t, err)
			assert.Equal(t, "text/html", ct)
			assert.Equal(t, "utf-8", params["charset"])
			assert.Equal(t, "base64", h.Get("Content-Transfer-Encoding"))
			assert.Equal(t, "Hi,<br>please find my CV attached.", string(body))
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			assert.Equal(t, "cv.pdf", name)
			ct, params, err := h.ContentType()
			require.NoError(t, err)
			assert.Equal(t, "application/pdf", ct)
			assert.Equal(t, "cv.pdf", params["name"])
			assert.Equal(t, "base64", h.Get("Content-Transfer-Encoding"))
			assert.Equal(t, pdf, body)
		default:
			t.Fatalf("unexpected part header %T", h)
		}
	}
	assert.Equal(t, 2, parts)
}

func TestBuildMIME_SinglePart(t *testing.T) {
	raw, err := BuildMIME(Email{To: "hr@acme.test", Subject: "Hello", HTML: "Hi<br>there"})
	require.NoError(t, err)

	e, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	ct, params, err := e.Header.ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/html", ct)
	assert.Equal(t, "utf-8", params["charset"])

	body, err := io.ReadAll(e.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hi<br>there", string(body))
}

func TestBuildMIME_RejectsBadAttachment(t *testing.T) {
	_, err := BuildMIME(Email{
		To:         "hr@acme.test",
		Subject:    "x",
		HTML:       "x",
		Attachment: &Attachment{Filename: "a.txt", ContentType: "text/plain", Data: "***"},
	})
	assert.Error(t, err)
}
