package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobmate/leads-service/internal/apperr"
)

// DefaultSendGridBaseURL is the SendGrid API root.
const DefaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGridSender delivers mail through the SendGrid v3 mail/send API. It is
// the transactional fallback when no delegated credential is usable.
type SendGridSender struct {
	BaseURL string
	APIKey  string
	From    string

	client *http.Client
}

func NewSendGridSender(baseURL, apiKey, from string) *SendGridSender {
	if baseURL == "" {
		baseURL = DefaultSendGridBaseURL
	}
	return &SendGridSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		From:    from,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether the sender has the key and address it needs.
func (s *SendGridSender) Configured() bool {
	return s != nil && s.APIKey != "" && s.From != ""
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
	Attachments      []sgAttachment      `json:"attachments,omitempty"`
}

// Send delivers e and returns SendGrid's message id when one is reported.
func (s *SendGridSender) Send(ctx context.Context, e Email) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("SENDGRID_API_KEY and SENDGRID_FROM_EMAIL are not configured")
	}

	m := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: e.To}}}},
		From:             sgAddress{Email: s.From},
		Subject:          e.Subject,
		Content:          []sgContent{{Type: "text/html", Value: e.HTML}},
	}
	if a := e.Attachment; a != nil {
		m.Attachments = []sgAttachment{{
			Content:     a.Data,
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: "attachment",
		}}
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &apperr.ProviderError{Provider: "sendgrid", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &apperr.ProviderError{
			Provider: "sendgrid",
			Msg:      fmt.Sprintf("mail/send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	return resp.Header.Get("X-Message-Id"), nil
}
