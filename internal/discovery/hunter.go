// Package discovery finds hiring-contact emails for job leads through a
// Hunter-style email-finder API.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"jobmate/leads-service/internal/model"
	"jobmate/leads-service/internal/scraper"
)

const httpTimeout = 15 * time.Second

var (
	// ErrQuota means the provider rejected the call for plan or rate limits
	// (HTTP 402/429). It ends the enrichment stage.
	ErrQuota = errors.New("discovery quota exhausted")
	// ErrUnavailable means the provider could not be reached at all.
	ErrUnavailable = errors.New("discovery provider unreachable")
	// ErrDeadline means the rate limiter could not admit the call before the
	// context deadline.
	ErrDeadline = fmt.Errorf("discovery wait exceeds deadline: %w", context.DeadlineExceeded)
)

// Result is the outcome of one lookup.
type Result struct {
	Email  string
	Status model.VerificationStatus
}

// Finder looks up a contact email for a company and person.
type Finder interface {
	Find(ctx context.Context, company, fullName string) (Result, error)
}

// Fatal reports whether err must stop the whole enrichment stage rather
// than mark a single lead.
func Fatal(err error) bool {
	return errors.Is(err, ErrQuota) || errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// HunterClient calls the /v2/email-finder endpoint. All calls share one
// client-side rate limiter.
type HunterClient struct {
	BaseURL string
	APIKey  string
	limiter *rate.Limiter
	client  *http.Client
}

// NewHunterClient builds a client allowing ratePerSec calls per second.
func NewHunterClient(baseURL, apiKey string, ratePerSec int) *HunterClient {
	return &HunterClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type hunterResponse struct {
	Data struct {
		Email        *string `json:"email"`
		Verification struct {
			Status string `json:"status"`
		} `json:"verification"`
	} `json:"data"`
}

// Searchable reports whether a lead names a real company and person. The
// normalizer's placeholders never identify an employer.
func Searchable(company, fullName string) bool {
	company, fullName = strings.TrimSpace(company), strings.TrimSpace(fullName)
	if company == "" || company == scraper.UnknownCompany {
		return false
	}
	return fullName != "" && fullName != scraper.UnknownPosition
}

// Find returns VerificationNone without calling out when no API key is
// configured or the lead is not Searchable.
func (c *HunterClient) Find(ctx context.Context, company, fullName string) (Result, error) {
	if c.APIKey == "" || !Searchable(company, fullName) {
		return Result{Status: model.VerificationNone}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// The limiter refuses waits that would outlive the deadline.
		return Result{}, fmt.Errorf("%w: %w", ErrDeadline, err)
	}

	params := url.Values{}
	params.Set("company", company)
	params.Set("full_name", fullName)
	params.Set("api_key", c.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v2/email-finder?"+params.Encode(), nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, fmt.Errorf("%w: status %d", ErrQuota, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return Result{Status: model.VerificationNone}, nil
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("email finder returned %d: %s", resp.StatusCode, string(body))
	}

	var out hunterResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("json unmarshal: %w", err)
	}
	if out.Data.Email == nil || *out.Data.Email == "" {
		return Result{Status: model.VerificationNone}, nil
	}
	return Result{Email: *out.Data.Email, Status: mapStatus(out.Data.Verification.Status)}, nil
}

func mapStatus(s string) model.VerificationStatus {
	switch s {
	case "valid":
		return model.VerificationValid
	case "accept_all":
		return model.VerificationCatchAll
	default:
		slog.Debug("unverified contact email", "status", s)
		return model.VerificationError
	}
}
