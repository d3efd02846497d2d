// Package mailer sends application emails on behalf of a user, through the
// user's delegated mailbox or through the transactional sender.
package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Attachment is a file sent along with the email. Data is standard base64.
type Attachment struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	Data        string `json:"data" validate:"required,base64"`
}

// Email is a fully resolved outgoing message.
type Email struct {
	From       string
	To         string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// HTMLBody turns a plain-text body into the HTML sent to recipients. Line
// breaks become <br>; the text itself is not escaped so users can paste
// simple markup.
func HTMLBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.ReplaceAll(body, "\n", "<br>")
}

// BuildMIME renders e as an RFC 5322 message. With an attachment the message
// is multipart/mixed: the HTML body first, then the file. Both parts are
// base64 encoded.
func BuildMIME(e Email) ([]byte, error) {
	var h mail.Header
	if e.From != "" {
		h.SetAddressList("From", []*mail.Address{{Address: e.From}})
	}
	h.SetAddressList("To", []*mail.Address{{Address: e.To}})
	h.SetSubject(e.Subject)
	h.Set("MIME-Version", "1.0")

	var buf bytes.Buffer
	if e.Attachment == nil {
		h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "base64")
		w, err := message.CreateWriter(&buf, h.Header)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if _, err := w.Write([]byte(e.HTML)); err != nil {
			return nil, fmt.Errorf("write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close message: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := base64.StdEncoding.DecodeString(e.Attachment.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment: %w", err)
	}

	h.SetContentType("multipart/mixed", nil)
	mw, err := message.CreateWriter(&buf, h.Header)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var bodyHeader message.Header
	bodyHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	bodyHeader.Set("Content-Transfer-Encoding", "base64")
	if err := writePart(mw, bodyHeader, []byte(e.HTML)); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}

	var fileHeader message.Header
	fileHeader.SetContentType(e.Attachment.ContentType, map[string]string{"name": e.Attachment.Filename})
	fileHeader.SetContentDisposition("attachment", map[string]string{"filename": e.Attachment.Filename})
	fileHeader.Set("Content-Transfer-Encoding", "base64")
	if err := writePart(mw, fileHeader, data); err != nil {
		return nil, fmt.Errorf("write attachment %q: %w", e.Attachment.Filename, err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(mw *message.Writer, h message.Header, body []byte) error {
	pw, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := pw.Write(body); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}
