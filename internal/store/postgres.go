package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/leads-service/internal/apperr"
	"jobmate/leads-service/internal/model"
)

// nonTerminalSQL matches the states from which a request may still fail.
const nonTerminalSQL = `status IN ('pending', 'processing', 'filtering', 'enriching')`

const requestColumns = `
	id::text, owner_id, keyword, location, work_type, resume_text, exclude_terms,
	source_query, provider_run_id, status, aborted,
	raw_results, filtered_results, enriched_results,
	total_count, filtered_count, can_apply_count,
	error_message, created_at, updated_at, completed_at`

// ─── Requests ─────────────────────────────────────────────────────────────────

// PGRequests is the PostgreSQL RequestStore.
type PGRequests struct {
	pool *pgxpool.Pool
}

// NewPGRequests returns a RequestStore backed by pool.
func NewPGRequests(pool *pgxpool.Pool) *PGRequests { return &PGRequests{pool: pool} }

func (s *PGRequests) Create(ctx context.Context, req *model.ScrapingRequest) error {
	terms := req.ExcludeTerms
	if terms == nil {
		terms = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scraping_requests
		   (id, owner_id, keyword, location, work_type, resume_text, exclude_terms, source_query, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		req.ID, req.OwnerID, req.Keyword, req.Location, string(req.WorkType),
		req.ResumeText, terms, req.SourceQuery, string(req.Status),
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return apperr.Persistence("create request", err)
	}
	return nil
}

func (s *PGRequests) Get(ctx context.Context, id string) (*model.ScrapingRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM scraping_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get request", err)
	}
	return req, nil
}

func (s *PGRequests) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.ScrapingRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+`
		 FROM scraping_requests
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, apperr.Persistence("list requests", err)
	}
	defer rows.Close()

	out := make([]model.ScrapingRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Persistence("list requests scan", err)
		}
		out = append(out, *req)
	}
	return out, apperr.Persistence("list requests", rows.Err())
}

func (s *PGRequests) SetRunID(ctx context.Context, id, runID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_requests
		 SET provider_run_id = $2, updated_at = NOW()
		 WHERE id = $1 AND `+nonTerminalSQL+` AND NOT aborted`,
		id, runID,
	)
	if err != nil {
		return false, apperr.Persistence("set run id", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGRequests) Transition(ctx context.Context, id string, from, to model.Status, u Update) (bool, error) {
	if !model.IsTransitionAllowed(from, to) {
		return false, fmt.Errorf("transition %s → %s is not allowed", from, to)
	}

	raw, err := jsonArg(u.RawResults, u.RawResults != nil)
	if err != nil {
		return false, err
	}
	filtered, err := jsonArg(u.FilteredResults, u.FilteredResults != nil)
	if err != nil {
		return false, err
	}
	enriched, err := jsonArg(u.EnrichedResults, u.EnrichedResults != nil)
	if err != nil {
		return false, err
	}
	var total, kept, canApply *int
	if u.Counts != nil {
		total, kept, canApply = &u.Counts.Total, &u.Counts.Filtered, &u.Counts.CanApply
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_requests
		 SET status           = $3,
		     raw_results      = COALESCE($4::jsonb, raw_results),
		     filtered_results = COALESCE($5::jsonb, filtered_results),
		     enriched_results = COALESCE($6::jsonb, enriched_results),
		     total_count      = COALESCE($7::int, total_count),
		     filtered_count   = COALESCE($8::int, filtered_count),
		     can_apply_count  = COALESCE($9::int, can_apply_count),
		     completed_at     = COALESCE($10::timestamptz, completed_at),
		     updated_at       = NOW()
		 WHERE id = $1 AND status = $2 AND NOT aborted`,
		id, string(from), string(to), raw, filtered, enriched,
		total, kept, canApply, u.CompletedAt,
	)
	if err != nil {
		return false, apperr.Persistence("transition", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGRequests) Fail(ctx context.Context, id, msg string, aborted bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scraping_requests
		 SET status = 'failed', aborted = $3, error_message = $2,
		     completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND `+nonTerminalSQL+` AND NOT aborted`,
		id, msg, aborted,
	)
	if err != nil {
		return false, apperr.Persistence("fail request", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGRequests) FailStale(ctx context.Context, createdBefore time.Time, msg string) ([]StaleRequest, error) {
	rows, err := s.pool.Query(ctx,
		`WITH stale AS (
		     SELECT id, status FROM scraping_requests
		     WHERE `+nonTerminalSQL+` AND NOT aborted AND created_at < $1
		     FOR UPDATE
		 )
		 UPDATE scraping_requests r
		 SET status = 'failed', error_message = $2,
		     completed_at = NOW(), updated_at = NOW()
		 FROM stale
		 WHERE r.id = stale.id
		 RETURNING r.id::text, r.owner_id, stale.status`,
		createdBefore, msg,
	)
	if err != nil {
		return nil, apperr.Persistence("fail stale requests", err)
	}
	defer rows.Close()

	var out []StaleRequest
	for rows.Next() {
		var (
			sr     StaleRequest
			status string
		)
		if err := rows.Scan(&sr.ID, &sr.OwnerID, &status); err != nil {
			return nil, apperr.Persistence("fail stale requests scan", err)
		}
		sr.From = model.Status(status)
		out = append(out, sr)
	}
	return out, apperr.Persistence("fail stale requests", rows.Err())
}

func scanRequest(row pgx.Row) (*model.ScrapingRequest, error) {
	var (
		r                       model.ScrapingRequest
		workType, status        string
		raw, filtered, enriched []byte
	)
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Keyword, &r.Location, &workType, &r.ResumeText, &r.ExcludeTerms,
		&r.SourceQuery, &r.ProviderRunID, &status, &r.Aborted,
		&raw, &filtered, &enriched,
		&r.Counts.Total, &r.Counts.Filtered, &r.Counts.CanApply,
		&r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.WorkType = model.WorkType(workType)
	if r.Status, err = model.ParseStatus(status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.RawResults); err != nil {
		return nil, fmt.Errorf("raw_results: %w", err)
	}
	if err := json.Unmarshal(filtered, &r.FilteredResults); err != nil {
		return nil, fmt.Errorf("filtered_results: %w", err)
	}
	if err := json.Unmarshal(enriched, &r.EnrichedResults); err != nil {
		return nil, fmt.Errorf("enriched_results: %w", err)
	}
	return &r, nil
}

// jsonArg returns the JSON encoding of v, or nil (SQL NULL) when absent.
func jsonArg(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return string(b), nil
}

// ─── Credentials ──────────────────────────────────────────────────────────────

// PGCredentials is the PostgreSQL CredentialStore.
type PGCredentials struct {
	pool *pgxpool.Pool
}

// NewPGCredentials returns a CredentialStore backed by pool.
func NewPGCredentials(pool *pgxpool.Pool) *PGCredentials { return &PGCredentials{pool: pool} }

func (s *PGCredentials) Get(ctx context.Context, ownerID string) (*model.DelegatedCredential, error) {
	var c model.DelegatedCredential
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, access_token, refresh_token, expires_at, is_active, created_at, updated_at
		 FROM delegated_credentials
		 WHERE owner_id = $1`,
		ownerID,
	).Scan(&c.OwnerID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get credential", err)
	}
	return &c, nil
}

func (s *PGCredentials) Upsert(ctx context.Context, c *model.DelegatedCredential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delegated_credentials (owner_id, access_token, refresh_token, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET access_token  = EXCLUDED.access_token,
		     refresh_token = CASE WHEN EXCLUDED.refresh_token <> ''
		                          THEN EXCLUDED.refresh_token
		                          ELSE delegated_credentials.refresh_token END,
		     expires_at    = EXCLUDED.expires_at,
		     is_active     = true,
		     updated_at    = NOW()`,
		c.OwnerID, c.AccessToken, c.RefreshToken, c.ExpiresAt,
	)
	return apperr.Persistence("upsert credential", err)
}

func (s *PGCredentials) SwapToken(ctx context.Context, ownerID, prevAccess string, next *model.DelegatedCredential) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE delegated_credentials
		 SET access_token  = $3,
		     refresh_token = CASE WHEN $4::text <> '' THEN $4::text ELSE refresh_token END,
		     expires_at    = $5,
		     updated_at    = NOW()
		 WHERE owner_id = $1 AND access_token = $2 AND is_active`,
		ownerID, prevAccess, next.AccessToken, next.RefreshToken, next.ExpiresAt,
	)
	if err != nil {
		return false, apperr.Persistence("swap token", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGCredentials) Deactivate(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE delegated_credentials SET is_active = false, updated_at = NOW() WHERE owner_id = $1`,
		ownerID,
	)
	return apperr.Persistence("deactivate credential", err)
}

// ─── Application log ──────────────────────────────────────────────────────────

// PGApplications is the PostgreSQL ApplicationLog.
type PGApplications struct {
	pool *pgxpool.Pool
}

// NewPGApplications returns an ApplicationLog backed by pool.
func NewPGApplications(pool *pgxpool.Pool) *PGApplications { return &PGApplications{pool: pool} }

func (s *PGApplications) Append(ctx context.Context, a *model.EmailApplication) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO email_applications
		   (id, owner_id, job_title, company_name, recipient, subject, body, channel, provider_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING sent_at`,
		a.ID, a.OwnerID, a.JobTitle, a.CompanyName, a.Recipient, a.Subject, a.Body,
		string(a.Channel), a.ProviderMessageID,
	).Scan(&a.SentAt)
	return apperr.Persistence("append application", err)
}

func (s *PGApplications) List(ctx context.Context, ownerID string, limit int) ([]model.EmailApplication, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, owner_id, job_title, company_name, recipient, subject, body,
		        channel, provider_message_id, sent_at
		 FROM email_applications
		 WHERE owner_id = $1
		 ORDER BY sent_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, apperr.Persistence("list applications", err)
	}
	defer rows.Close()

	out := make([]model.EmailApplication, 0)
	for rows.Next() {
		var (
			a       model.EmailApplication
			channel string
		)
		if err := rows.Scan(
			&a.ID, &a.OwnerID, &a.JobTitle, &a.CompanyName, &a.Recipient, &a.Subject, &a.Body,
			&channel, &a.ProviderMessageID, &a.SentAt,
		); err != nil {
			return nil, apperr.Persistence("list applications scan", err)
		}
		a.Channel = model.SendChannel(channel)
		out = append(out, a)
	}
	return out, apperr.Persistence("list applications", rows.Err())
}
