// Package credentials manages delegated-send authorizations: the consent
// round trip, token storage, refresh and unlinking.
package credentials

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/store"
	"jobmate/leads-service/internal/ttlcache"
)

// MsgNotConnected is the CredentialError message when no usable credential exists.
const MsgNotConnected = "credential not connected"

// defaultTokenLifetime applies when the provider omits an expiry.
const defaultTokenLifetime = time.Hour

// Status is the connection state reported to clients.
type Status struct {
	IsConnected  bool       `json:"isConnected"`
	NeedsRefresh bool       `json:"needsRefresh"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

// Config bundles the service's collaborators.
type Config struct {
	Credentials store.CredentialStore
	OAuth       OAuthProvider
	States      *StateSigner
	Pending     ttlcache.Cache
	StateTTL    time.Duration
	AppBaseURL  string
}

type Service struct {
	cfg Config
	now func() time.Time
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// Authorize returns the provider consent URL for owner. Consent is forced
// only when no stored credential holds a refresh token.
func (s *Service) Authorize(ctx context.Context, ownerID, returnURL string) (string, error) {
	cred, err := s.cfg.Credentials.Get(ctx, ownerID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	forceConsent := cred == nil || cred.RefreshToken == ""

	nonce := uuid.NewString()
	ret := SanitizeReturnURL(returnURL, s.cfg.AppBaseURL)
	state, err := s.cfg.States.Sign(ownerID, ret, nonce)
	if err != nil {
		return "", err
	}
	if err := s.cfg.Pending.Put(ctx, nonce, ownerID, s.cfg.StateTTL); err != nil {
		return "", apperr.Persistence("record pending authorization", err)
	}
	return s.cfg.OAuth.AuthCodeURL(state, forceConsent), nil
}

// Callback completes the consent round trip. It always returns the URL the
// browser should be sent back to; the URL from an unverified state is never
// used.
func (s *Service) Callback(ctx context.Context, code, state string) (string, error) {
	fallback := SanitizeReturnURL("", s.cfg.AppBaseURL)

	claims, err := s.cfg.States.Verify(state)
	if err != nil {
		return fallback, &apperr.AuthExchangeError{Reason: "invalid state", Err: err}
	}
	ret := claims.ReturnURL

	owner, ok, err := s.cfg.Pending.Take(ctx, claims.ID)
	if err != nil {
		return ret, apperr.Persistence("consume pending authorization", err)
	}
	if !ok || owner != claims.OwnerID {
		return ret, &apperr.AuthExchangeError{Reason: "state already used or expired"}
	}
	if code == "" {
		return ret, &apperr.AuthExchangeError{Reason: "missing authorization code"}
	}

	tok, err := s.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return ret, &apperr.AuthExchangeError{Reason: "code exchange failed", Err: err}
	}

	cred := &model.DelegatedCredential{
		OwnerID:      claims.OwnerID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    s.expiry(tok),
		IsActive:     true,
	}
	if err := s.cfg.Credentials.Upsert(ctx, cred); err != nil {
		return ret, err
	}
	slog.Info("delegated credential linked", "userId", claims.OwnerID, "refreshTokenIssued", tok.RefreshToken != "")
	return ret, nil
}

// Status reports whether owner can send through the delegated channel.
func (s *Service) Status(ctx context.Context, ownerID string) (Status, error) {
	cred, err := s.cfg.Credentials.Get(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	now := s.now()
	exp := cred.ExpiresAt
	return Status{
		IsConnected:  cred.Connected(now),
		NeedsRefresh: cred.NeedsRefresh(now),
		ExpiresAt:    &exp,
	}, nil
}

// Unlink deactivates the credential and keeps its tokens.
func (s *Service) Unlink(ctx context.Context, ownerID string) error {
	if err := s.cfg.Credentials.Deactivate(ctx, ownerID); err != nil {
		return err
	}
	slog.Info("delegated credential unlinked", "userId", ownerID)
	return nil
}

// ActiveToken returns an access token usable right now, refreshing it when
// it has expired. A failed refresh deactivates the credential.
func (s *Service) ActiveToken(ctx context.Context, ownerID string) (string, error) {
	cred, err := s.cfg.Credentials.Get(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", &apperr.CredentialError{Msg: MsgNotConnected}
	}
	if err != nil {
		return "", err
	}
	now := s.now()
	if cred.Connected(now) {
		return cred.AccessToken, nil
	}
	if !cred.NeedsRefresh(now) {
		return "", &apperr.CredentialError{Msg: MsgNotConnected}
	}
	if cred.RefreshToken == "" {
		s.deactivate(ctx, ownerID, "no refresh token")
		return "", &apperr.CredentialError{Msg: MsgNotConnected}
	}

	tok, err := s.cfg.OAuth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		s.deactivate(ctx, ownerID, err.Error())
		return "", &apperr.CredentialError{Msg: MsgNotConnected, Err: err}
	}

	next := &model.DelegatedCredential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    s.expiry(tok),
	}
	won, err := s.cfg.Credentials.SwapToken(ctx, ownerID, cred.AccessToken, next)
	if err != nil {
		return "", err
	}
	if won {
		metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()
		return tok.AccessToken, nil
	}

	// Another refresh landed first; use its token.
	metrics.TokenRefreshes.WithLabelValues("lost_race").Inc()
	cur, err := s.cfg.Credentials.Get(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if !cur.Connected(s.now()) {
		return "", &apperr.CredentialError{Msg: MsgNotConnected}
	}
	return cur.AccessToken, nil
}

func (s *Service) deactivate(ctx context.Context, ownerID, reason string) {
	slog.Warn("deactivating delegated credential", "userId", ownerID, "reason", reason)
	if err := s.cfg.Credentials.Deactivate(ctx, ownerID); err != nil {
		slog.Error("deactivate credential", "userId", ownerID, "err", err)
	}
}

func (s *Service) expiry(tok *oauth2.Token) time.Time {
	if tok.Expiry.IsZero() {
		return s.now().Add(defaultTokenLifetime).UTC()
	}
	return tok.Expiry.UTC()
}
