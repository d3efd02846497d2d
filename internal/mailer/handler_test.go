package mailer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(mux *http.ServeMux, method, path, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("x-user-id", user)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Send(t *testing.T) {
	f := newDispatchFixture(fakeTokens{err: notConnected}, true)
	mux := http.NewServeMux()
	NewHandler(f.d).RegisterRoutes(mux)

	rec := serve(mux, http.MethodPost, "/emails/send",
		`{"to":"hr@acme.test","subject":"Hi","body":"Hello","companyName":"Acme"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"channel":"transactional"}`, rec.Body.String())

	rec = serve(mux, http.MethodPost, "/emails/send",
		`{"to":"hr@acme.test","subject":"Hi","body":"Hello","useDelegated":true}`, "u1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"credential not connected"}`, rec.Body.String())

	rec = serve(mux, http.MethodGet, "/emails/applications", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"companyName":"Acme"`)
	assert.Contains(t, rec.Body.String(), `"channel":"transactional"`)
}

func TestHandler_SendRejectsBadInput(t *testing.T) {
	f := newDispatchFixture(fakeTokens{token: "at"}, false)
	mux := http.NewServeMux()
	NewHandler(f.d).RegisterRoutes(mux)

	rec := serve(mux, http.MethodPost, "/emails/send", `{"to":"nope","subject":"Hi","body":"x"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, http.MethodPost, "/emails/send", `{not json`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, http.MethodPost, "/emails/send", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.delegated.raws)
}
