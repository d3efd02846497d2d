package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/scraper"
	"jobmate/leads-service/internal/store"
)

const listLimit = 50

// SubmitInput is the payload of a new scrape request.
type SubmitInput struct {
	Keyword      string   `json:"keyword" validate:"required,max=200"`
	Location     string   `json:"location" validate:"required,max=200"`
	WorkType     string   `json:"workType" validate:"required,oneof=remote hybrid onsite"`
	ResumeText   *string  `json:"resumeText,omitempty"`
	ExcludeTerms []string `json:"excludeTerms,omitempty" validate:"max=50,dive,max=100"`
}

// RunAborter stops a provider run. Errors are only logged.
type RunAborter interface {
	AbortRun(ctx context.Context, runID string) error
}

// Service is the request lifecycle API used by the HTTP and gRPC handlers.
type Service struct {
	requests store.RequestStore
	runner   *Runner
	aborter  RunAborter
	validate *validator.Validate
}

func NewService(requests store.RequestStore, runner *Runner, aborter RunAborter) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &Service{requests: requests, runner: runner, aborter: aborter, validate: v}
}

// Submit validates and stores a pending request, then starts its pipeline
// run in the background. The provider is never called before it returns.
func (s *Service) Submit(ctx context.Context, ownerID string, in SubmitInput) (string, error) {
	in.Keyword = strings.TrimSpace(in.Keyword)
	in.Location = strings.TrimSpace(in.Location)
	in.WorkType = strings.ToLower(strings.TrimSpace(in.WorkType))
	if err := s.validate.Struct(in); err != nil {
		return "", validationError(err)
	}

	workType := model.WorkType(in.WorkType)
	query, err := scraper.CanonicalQuery(in.Keyword, in.Location, workType)
	if err != nil {
		return "", apperr.Validation("%v", err)
	}

	req := &model.ScrapingRequest{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Keyword:      in.Keyword,
		Location:     in.Location,
		WorkType:     workType,
		ResumeText:   in.ResumeText,
		ExcludeTerms: in.ExcludeTerms,
		SourceQuery:  query,
		Status:       model.StatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	metrics.RequestsSubmitted.Inc()
	slog.Info("scrape request submitted", "requestId", req.ID, "userId", ownerID)

	s.runner.Start(req)
	return req.ID, nil
}

// Get returns the request when it belongs to ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.ScrapingRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.ErrNotFound
	}
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.OwnerID != ownerID {
		return nil, apperr.ErrNotFound
	}
	return req, nil
}

// List returns the owner's most recent requests, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.ScrapingRequest, error) {
	return s.requests.ListByOwner(ctx, ownerID, listLimit)
}

// Abort stops a request. It is idempotent: aborting a terminal or already
// aborted request succeeds without changing it.
func (s *Service) Abort(ctx context.Context, ownerID, id string) error {
	req, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if model.IsTerminal(req.Status) || req.Aborted {
		return nil
	}

	ok, err := s.requests.Fail(ctx, id, model.AbortedMessage, true)
	if err != nil {
		return fmt.Errorf("abort: %w", err)
	}

	if req.ProviderRunID != "" && s.aborter != nil {
		if err := s.aborter.AbortRun(ctx, req.ProviderRunID); err != nil {
			slog.Warn("provider abort failed", "requestId", id, "runId", req.ProviderRunID, "err", err)
		}
	}
	s.runner.Cancel(id)

	if ok {
		slog.Info("scrape request aborted", "requestId", id, "from", req.Status)
		s.runner.notify(req, req.Status, model.StatusFailed, true)
	}
	return nil
}

// Wait blocks until the in-process run for id exits.
func (s *Service) Wait(ctx context.Context, id string) error {
	return s.runner.Wait(ctx, id)
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
	case "oneof":
		return apperr.Validation("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return apperr.Validation("%s exceeds the maximum of %s", fe.Namespace(), fe.Param())
	default:
		return apperr.Validation("%s is invalid", fe.Field())
	}
}
