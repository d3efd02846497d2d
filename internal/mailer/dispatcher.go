package mailer

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/scraper"
	"jobmate/leads-service/internal/store"
)

const listLimit = 100

// SendInput is the payload of one application email.
type SendInput struct {
	To           string      `json:"to" validate:"required,email"`
	Subject      string      `json:"subject" validate:"required,max=998"`
	Body         string      `json:"body" validate:"required"`
	JobTitle     string      `json:"jobTitle,omitempty" validate:"max=300"`
	CompanyName  string      `json:"companyName,omitempty" validate:"max=300"`
	UseDelegated bool        `json:"useDelegated,omitempty"`
	Attachment   *Attachment `json:"attachment,omitempty"`
}

// TokenSource yields a usable delegated access token for an owner or a
// *apperr.CredentialError.
type TokenSource interface {
	ActiveToken(ctx context.Context, ownerID string) (string, error)
}

// DelegatedSender sends a raw MIME message from the owner's mailbox.
type DelegatedSender interface {
	Send(ctx context.Context, accessToken string, raw []byte) (string, error)
}

// TransactionalSender sends from the service's own address.
type TransactionalSender interface {
	Configured() bool
	Send(ctx context.Context, e Email) (string, error)
}

// DispatcherConfig bundles the dispatcher's collaborators. Fallback may be
// nil.
type DispatcherConfig struct {
	Tokens       TokenSource
	Delegated    DelegatedSender
	Fallback     TransactionalSender
	Applications store.ApplicationLog
}

// Dispatcher picks a send channel, sends the email and logs the application.
type Dispatcher struct {
	cfg      DispatcherConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Dispatcher{cfg: cfg, validate: v, now: time.Now}
}

// Send delivers the email through the owner's delegated mailbox when a
// credential is usable. Otherwise it falls back to the transactional sender,
// unless the caller demanded the delegated channel.
func (d *Dispatcher) Send(ctx context.Context, ownerID string, in SendInput) (model.SendChannel, error) {
	in.To = strings.TrimSpace(in.To)
	in.Subject = strings.TrimSpace(in.Subject)
	if err := d.validate.Struct(in); err != nil {
		return "", validationError(err)
	}

	email := Email{
		To:         in.To,
		Subject:    in.Subject,
		HTML:       HTMLBody(in.Body),
		Attachment: in.Attachment,
	}

	var (
		channel   model.SendChannel
		messageID string
	)
	token, err := d.cfg.Tokens.ActiveToken(ctx, ownerID)
	switch {
	case err == nil:
		raw, err := BuildMIME(email)
		if err != nil {
			return "", apperr.Validation("invalid attachment: %v", err)
		}
		if messageID, err = d.cfg.Delegated.Send(ctx, token, raw); err != nil {
			return "", err
		}
		channel = model.ChannelDelegated

	case isCredentialError(err) && !in.UseDelegated && d.fallbackReady():
		slog.Info("delegated credential unavailable, using transactional sender", "userId", ownerID, "reason", err)
		if messageID, err = d.cfg.Fallback.Send(ctx, email); err != nil {
			return "", err
		}
		channel = model.ChannelTransactional

	default:
		return "", err
	}

	metrics.EmailsSent.WithLabelValues(string(channel)).Inc()
	d.record(ctx, ownerID, in, channel, messageID)
	return channel, nil
}

// ListApplications returns the owner's sent applications, newest first.
func (d *Dispatcher) ListApplications(ctx context.Context, ownerID string) ([]model.EmailApplication, error) {
	return d.cfg.Applications.List(ctx, ownerID, listLimit)
}

// record appends the application log entry. The email is already out, so a
// failed write is logged and not returned.
func (d *Dispatcher) record(ctx context.Context, ownerID string, in SendInput, channel model.SendChannel, messageID string) {
	app := &model.EmailApplication{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		JobTitle:          orDefault(in.JobTitle, scraper.UnknownPosition),
		CompanyName:       orDefault(in.CompanyName, scraper.UnknownCompany),
		Recipient:         in.To,
		Subject:           in.Subject,
		Body:              in.Body,
		Channel:           channel,
		ProviderMessageID: messageID,
		SentAt:            d.now().UTC(),
	}
	if err := d.cfg.Applications.Append(ctx, app); err != nil {
		slog.Error("record email application", "userId", ownerID, "channel", channel, "err", err)
		return
	}
	slog.Info("application email sent", "userId", ownerID, "channel", channel, "company", app.CompanyName)
}

func (d *Dispatcher) fallbackReady() bool {
	return d.cfg.Fallback != nil && d.cfg.Fallback.Configured()
}

func isCredentialError(err error) bool {
	var ce *apperr.CredentialError
	return errors.As(err, &ce)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid request: %v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", fe.Field())
	case "email":
		return apperr.Validation("%s must be a valid email address", fe.Field())
	case "base64":
		return apperr.Validation("attachment %s must be base64 encoded", fe.Field())
	case "max":
		return apperr.Validation("%s exceeds the maximum of %s", fe.Field(), fe.Param())
	default:
		return apperr.Validation("%s is invalid", fe.Field())
	}
}
