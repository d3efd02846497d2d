// Package model defines shared data structures for the leads service.
package model

import (
	"encoding/json"
	"time"
)

// Status is the pipeline stage of a ScrapingRequest. Values mirror the
// scraping_requests.status column.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFiltering  Status = "filtering"
	StatusEnriching  Status = "enriching"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AbortedMessage is the errorMessage of a request stopped by its owner.
const AbortedMessage = "aborted by user"

// WorkType is the remote policy requested by the user.
type WorkType string

const (
	WorkRemote WorkType = "remote"
	WorkHybrid WorkType = "hybrid"
	WorkOnsite WorkType = "onsite"
)

// RawRecord is one dataset item exactly as the scraping provider returned it.
type RawRecord = json.RawMessage

// ScrapingRequest mirrors a scraping_requests row.
type ScrapingRequest struct {
	ID            string
	OwnerID       string
	Keyword       string
	Location      string
	WorkType      WorkType
	ResumeText    *string
	ExcludeTerms  []string
	SourceQuery   string
	ProviderRunID string
	Status        Status
	Aborted       bool

	RawResults      []RawRecord
	FilteredResults []JobLead
	EnrichedResults []EnrichedJobLead
	Counts          LeadCounts

	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// LeadCounts are the per-stage totals recorded for later reporting.
type LeadCounts struct {
	Total    int `json:"totalCount"`
	Filtered int `json:"filteredCount"`
	CanApply int `json:"canApplyCount"`
}

// JobLead is a normalized provider record. JobTitle and CompanyName are
// never empty.
type JobLead struct {
	JobTitle        string `json:"jobTitle"`
	CompanyName     string `json:"companyName"`
	Location        string `json:"location"`
	Description     string `json:"description"`
	SourceURL       string `json:"sourceUrl"`
	Salary          string `json:"salary,omitempty"`
	PostedDate      string `json:"postedDate,omitempty"`
	ExperienceLevel string `json:"experienceLevel,omitempty"`
	WorkType        string `json:"workType,omitempty"`
	PosterName      string `json:"posterName,omitempty"`
	PosterTitle     string `json:"posterTitle,omitempty"`
	PosterURL       string `json:"posterUrl,omitempty"`
}

// VerificationStatus is the deliverability verdict attached to a contact email.
type VerificationStatus string

const (
	VerificationValid    VerificationStatus = "valid"
	VerificationCatchAll VerificationStatus = "catch-all"
	VerificationError    VerificationStatus = "error"
	VerificationNone     VerificationStatus = "none"
)

// EnrichedJobLead is a JobLead with the outcome of contact discovery.
type EnrichedJobLead struct {
	JobLead
	ContactEmail            string             `json:"contactEmail,omitempty"`
	EmailVerificationStatus VerificationStatus `json:"emailVerificationStatus"`
}

// CanApply reports whether the lead can receive an application email:
// an email was found and it verified as valid or catch-all.
func (l EnrichedJobLead) CanApply() bool {
	if l.ContactEmail == "" {
		return false
	}
	return l.EmailVerificationStatus == VerificationValid ||
		l.EmailVerificationStatus == VerificationCatchAll
}

type enrichedAlias EnrichedJobLead

// MarshalJSON emits canApply derived from the lead's inputs.
func (l EnrichedJobLead) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		enrichedAlias
		CanApply bool `json:"canApply"`
	}{enrichedAlias(l), l.CanApply()})
}

// UnmarshalJSON ignores any stored canApply value; it is always recomputed.
func (l *EnrichedJobLead) UnmarshalJSON(data []byte) error {
	var a enrichedAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = EnrichedJobLead(a)
	return nil
}

// DelegatedCredential mirrors a delegated_credentials row. At most one per owner.
type DelegatedCredential struct {
	OwnerID      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Connected reports isActive AND expiresAt > now.
func (c *DelegatedCredential) Connected(now time.Time) bool {
	return c != nil && c.IsActive && c.ExpiresAt.After(now)
}

// NeedsRefresh reports isActive AND expiresAt <= now.
func (c *DelegatedCredential) NeedsRefresh(now time.Time) bool {
	return c != nil && c.IsActive && !c.ExpiresAt.After(now)
}

// SendChannel records which sender delivered an application email.
type SendChannel string

const (
	ChannelDelegated     SendChannel = "delegated"
	ChannelTransactional SendChannel = "transactional"
)

// EmailApplication is an append-only log entry of a sent application email.
type EmailApplication struct {
	ID                string      `json:"id"`
	OwnerID           string      `json:"-"`
	JobTitle          string      `json:"jobTitle"`
	CompanyName       string      `json:"companyName"`
	Recipient         string      `json:"recipient"`
	Subject           string      `json:"subject"`
	Body              string      `json:"body"`
	Channel           SendChannel `json:"channel"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	SentAt            time.Time   `json:"sentAt"`
}
