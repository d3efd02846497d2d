package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"jobmate/leads-service/internal/apperr"
)

// DefaultGmailBaseURL is the Gmail REST API root.
const DefaultGmailBaseURL = "https://gmail.googleapis.com"

// GmailSender posts raw MIME messages to the user's mailbox with the
// delegated access token.
type GmailSender struct {
	BaseURL string
}

func NewGmailSender(baseURL string) *GmailSender {
	if baseURL == "" {
		baseURL = DefaultGmailBaseURL
	}
	return &GmailSender{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Send delivers raw as the owner of accessToken and returns the provider's
// message id.
func (g *GmailSender) Send(ctx context.Context, accessToken string, raw []byte) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"raw": base64.RawURLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.BaseURL+"/gmail/v1/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	resp, err := client.Do(req)
	if err != nil {
		return "", &apperr.ProviderError{Provider: "gmail", Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &apperr.ProviderError{
			Provider: "gmail",
			Msg:      fmt.Sprintf("send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &apperr.ProviderError{Provider: "gmail", Msg: "decode response", Err: err}
	}
	return out.ID, nil
}
