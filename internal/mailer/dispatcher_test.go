package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/store"
)

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) ActiveToken(context.Context, string) (string, error) { return f.token, f.err }

type fakeDelegated struct {
	mu     sync.Mutex
	tokens []string
	raws   [][]byte
	err    error
}

func (f *fakeDelegated) Send(_ context.Context, token string, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.tokens = append(f.tokens, token)
	f.raws = append(f.raws, raw)
	return "gmail-1", nil
}

type fakeFallback struct {
	configured bool
	sent       []Email
}

func (f *fakeFallback) Configured() bool { return f.configured }

func (f *fakeFallback) Send(_ context.Context, e Email) (string, error) {
	f.sent = append(f.sent, e)
	return "sg-1", nil
}

var notConnected = &apperr.CredentialError{Msg: "credential not connected"}

type dispatchFixture struct {
	d         *Dispatcher
	delegated *fakeDelegated
	fallback  *fakeFallback
	apps      *store.MemoryApplications
}

func newDispatchFixture(tokens fakeTokens, fallbackConfigured bool) *dispatchFixture {
	f := &dispatchFixture{
		delegated: &fakeDelegated{},
		fallback:  &fakeFallback{configured: fallbackConfigured},
		apps:      store.NewMemoryApplications(),
	}
	f.d = NewDispatcher(DispatcherConfig{
		Tokens:       tokens,
		Delegated:    f.delegated,
		Fallback:     f.fallback,
		Applications: f.apps,
	})
	return f
}

func validInput() SendInput {
	return SendInput{
		To:      "hr@acme.test",
		Subject: "Application",
		Body:    "Hello\nWorld",
	}
}

func TestSend_DelegatedChannel(t *testing.T) {
	f := newDispatchFixture(fakeTokens{token: "at-1"}, true)
	ctx := context.Background()

	channel, err := f.d.Send(ctx, "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, model.ChannelDelegated, channel)
	assert.Empty(t, f.fallback.sent)
	require.Len(t, f.delegated.raws, 1)
	assert.Equal(t, "at-1", f.delegated.tokens[0])

	mr, err := mail.CreateReader(strings.NewReader(string(f.delegated.raws[0])))
	require.NoError(t, err)
	p, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(p.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello<br>World", string(body))

	apps, err := f.d.ListApplications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, model.ChannelDelegated, apps[0].Channel)
	assert.Equal(t, "Unknown Position", apps[0].JobTitle)
	assert.Equal(t, "Unknown Company", apps[0].CompanyName)
	assert.Equal(t, "gmail-1", apps[0].ProviderMessageID)
	assert.Equal(t, "Hello\nWorld", apps[0].Body)
}

func TestSend_FallsBackToTransactional(t *testing.T) {
	f := newDispatchFixture(fakeTokens{err: notConnected}, true)
	in := validInput()
	in.JobTitle = "Go Developer"
	in.CompanyName = "Acme"

	channel, err := f.d.Send(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelTransactional, channel)
	require.Len(t, f.fallback.sent, 1)
	assert.Equal(t, "Hello<br>World", f.fallback.sent[0].HTML)
	assert.Empty(t, f.delegated.raws)

	apps, err := f.d.ListApplications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Go Developer", apps[0].JobTitle)
	assert.Equal(t, "Acme", apps[0].CompanyName)
}

func TestSend_CredentialErrorSurfaces(t *testing.T) {
	t.Run("delegated demanded", func(t *testing.T) {
		f := newDispatchFixture(fakeTokens{err: notConnected}, true)
		in := validInput()
		in.UseDelegated = true
		_, err := f.d.Send(context.Background(), "u1", in)
		var ce *apperr.CredentialError
		require.ErrorAs(t, err, &ce)
		assert.Empty(t, f.fallback.sent)
	})

	t.Run("no transactional sender", func(t *testing.T) {
		f := newDispatchFixture(fakeTokens{err: notConnected}, false)
		_, err := f.d.Send(context.Background(), "u1", validInput())
		var ce *apperr.CredentialError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("store failure is not a credential problem", func(t *testing.T) {
		f := newDispatchFixture(fakeTokens{err: errors.New("connection refused")}, true)
		_, err := f.d.Send(context.Background(), "u1", validInput())
		require.Error(t, err)
		assert.Empty(t, f.fallback.sent)
	})
}

func TestSend_Validation(t *testing.T) {
	f := newDispatchFixture(fakeTokens{token: "at"}, false)
	tests := []struct {
		name string
		mut  func(*SendInput)
		msg  string
	}{
		{"bad recipient", func(in *SendInput) { in.To = "not-an-email" }, "to must be a valid email address"},
		{"missing subject", func(in *SendInput) { in.Subject = "  " }, "subject is required"},
		{"missing body", func(in *SendInput) { in.Body = "" }, "body is required"},
		{"attachment not base64", func(in *SendInput) {
			in.Attachment = &Attachment{Filename: "cv.pdf", ContentType: "application/pdf", Data: "%%%"}
		}, "attachment data must be base64 encoded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mut(&in)
			_, err := f.d.Send(context.Background(), "u1", in)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.msg, ve.Msg)
		})
	}
	assert.Empty(t, f.delegated.raws)
}

func TestGmailSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		var body struct {
			Raw string `json:"raw"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body.Raw, "=")
		raw, err := base64.RawURLEncoding.DecodeString(body.Raw)
		assert.NoError(t, err)
		assert.Contains(t, string(raw), "Subject: Hello")
		w.Write([]byte(`{"id":"msg-42","threadId":"t-1"}`))
	}))
	defer srv.Close()

	raw, err := BuildMIME(Email{To: "hr@acme.test", Subject: "Hello", HTML: "Hi"})
	require.NoError(t, err)

	id, err := NewGmailSender(srv.URL).Send(context.Background(), "at-1", raw)
	require.NoError(t, err)
	assert.Equal(t, "msg-42", id)
}

func TestGmailSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewGmailSender(srv.URL).Send(context.Background(), "at-1", []byte("x"))
	var pe *apperr.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, "403")
}

func TestSendGridSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		var m sgMail
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		assert.Equal(t, "jobs@jobmate.test", m.From.Email)
		if assert.Len(t, m.Personalizations, 1) {
			assert.Equal(t, "hr@acme.test", m.Personalizations[0].To[0].Email)
		}
		assert.Equal(t, "text/html", m.Content[0].Type)
		if assert.Len(t, m.Attachments, 1) {
			assert.Equal(t, "attachment", m.Attachments[0].Disposition)
			assert.Equal(t, "cv.pdf", m.Attachments[0].Filename)
		}
		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender(srv.URL, "sg-key", "jobs@jobmate.test")
	require.True(t, s.Configured())
	id, err := s.Send(context.Background(), Email{
		To:         "hr@acme.test",
		Subject:    "Hello",
		HTML:       "Hi",
		Attachment: &Attachment{Filename: "cv.pdf", ContentType: "application/pdf", Data: "JVBERg=="},
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-msg-1", id)
}

func TestSendGridSender_NotConfigured(t *testing.T) {
	var nilSender *SendGridSender
	assert.False(t, nilSender.Configured())
	assert.False(t, NewSendGridSender("", "", "").Configured())
}
