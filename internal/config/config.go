// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the leads service.
type Config struct {
	Port     string
	GRPCPort string

	DatabaseURL string
	RedisURL    string

	// StoreBackend selects "postgres" (default) or "memory" for local runs.
	StoreBackend string

	// Scraping provider (Apify actor run API)
	ApifyToken       string
	ApifyBaseURL     string
	ScrapeProvider   string // profile name, see scraper.LookupProfile
	ApifyActorID     string // optional override of the profile's actor
	ScrapeMaxResults int
	ProviderPoll     time.Duration

	// Contact discovery (Hunter-style email finder)
	DiscoveryAPIKey       string
	DiscoveryBaseURL      string
	DiscoveryRatePerSec   int
	EnrichmentConcurrency int

	// Pipeline wall-clock budget per run
	MaxRunDuration time.Duration
	SweepSpec      string

	// Delegated send (Google OAuth + Gmail)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleAuthURL      string // optional endpoint override
	GoogleTokenURL     string // optional endpoint override
	OAuthRedirectURL   string
	OAuthStateSecret   string
	OAuthStateTTL      time.Duration
	AppBaseURL         string
	GmailBaseURL       string

	// Transactional fallback (SendGrid v3)
	SendGridAPIKey    string
	SendGridBaseURL   string
	SendGridFromEmail string
}

// Load reads environment variables (after an optional .env file) and returns
// a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	backend := envOr("STORE_BACKEND", "postgres")
	if backend != "postgres" && backend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", backend)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" && backend == "postgres" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" && backend == "postgres" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	stateSecret := os.Getenv("OAUTH_STATE_SECRET")
	if stateSecret == "" {
		return nil, fmt.Errorf("OAUTH_STATE_SECRET is required")
	}

	maxResults, err := envInt("SCRAPE_MAX_RESULTS", 100)
	if err != nil {
		return nil, err
	}
	ratePerSec, err := envInt("DISCOVERY_RATE_PER_SEC", 5)
	if err != nil {
		return nil, err
	}
	concurrency, err := envInt("ENRICHMENT_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	poll, err := envDuration("PROVIDER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	maxRun, err := envDuration("PIPELINE_MAX_RUN_DURATION", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	stateTTL, err := envDuration("OAUTH_STATE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:         envOr("LEADS_PORT", "8083"),
		GRPCPort:     envOr("LEADS_GRPC_PORT", "9083"),
		DatabaseURL:  dbURL,
		RedisURL:     redisURL,
		StoreBackend: backend,

		ApifyToken:       os.Getenv("APIFY_API_KEY"),
		ApifyBaseURL:     envOr("APIFY_BASE_URL", "https://api.apify.com"),
		ScrapeProvider:   envOr("SCRAPE_PROVIDER", "linkedin-jobs"),
		ApifyActorID:     os.Getenv("APIFY_ACTOR_ID"),
		ScrapeMaxResults: maxResults,
		ProviderPoll:     poll,

		DiscoveryAPIKey:       os.Getenv("HUNTER_API_KEY"),
		DiscoveryBaseURL:      envOr("HUNTER_BASE_URL", "https://api.hunter.io"),
		DiscoveryRatePerSec:   ratePerSec,
		EnrichmentConcurrency: concurrency,

		MaxRunDuration: maxRun,
		SweepSpec:      envOr("SWEEP_SPEC", "@every 1m"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleAuthURL:      os.Getenv("GOOGLE_AUTH_URL"),
		GoogleTokenURL:     os.Getenv("GOOGLE_TOKEN_URL"),
		OAuthRedirectURL:   envOr("OAUTH_REDIRECT_URL", "http://localhost:8083/credentials/callback"),
		OAuthStateSecret:   stateSecret,
		OAuthStateTTL:      stateTTL,
		AppBaseURL:         envOr("APP_BASE_URL", "http://localhost:5173"),
		GmailBaseURL:       envOr("GMAIL_BASE_URL", "https://gmail.googleapis.com"),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridBaseURL:   envOr("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
		SendGridFromEmail: envOr("SENDGRID_FROM_EMAIL", "noreply@jobmate.app"),
	}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return v, nil
}
