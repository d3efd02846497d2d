package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/jobmate")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OAUTH_STATE_SECRET", "s3cret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "linkedin-jobs", cfg.ScrapeProvider)
	assert.Equal(t, 100, cfg.ScrapeMaxResults)
	assert.Equal(t, 5*time.Second, cfg.ProviderPoll)
	assert.Equal(t, 15*time.Minute, cfg.MaxRunDuration)
	assert.Equal(t, 10*time.Minute, cfg.OAuthStateTTL)
	assert.Equal(t, 4, cfg.EnrichmentConcurrency)
	assert.Equal(t, "@every 1m", cfg.SweepSpec)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PIPELINE_MAX_RUN_DURATION", "5m")
	t.Setenv("ENRICHMENT_CONCURRENCY", "8")
	t.Setenv("SCRAPE_PROVIDER", "linkedin-jobs-start-urls")
	t.Setenv("APIFY_ACTOR_ID", "me~my-actor")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.MaxRunDuration)
	assert.Equal(t, 8, cfg.EnrichmentConcurrency)
	assert.Equal(t, "linkedin-jobs-start-urls", cfg.ScrapeProvider)
	assert.Equal(t, "me~my-actor", cfg.ApifyActorID)
}

func TestLoad_FailFast(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		set   map[string]string
		want  string
	}{
		{name: "database url", unset: "DATABASE_URL", want: "DATABASE_URL is required"},
		{name: "redis url", unset: "REDIS_URL", want: "REDIS_URL is required"},
		{name: "state secret", unset: "OAUTH_STATE_SECRET", want: "OAUTH_STATE_SECRET is required"},
		{name: "bad backend", set: map[string]string{"STORE_BACKEND": "sqlite"}, want: "STORE_BACKEND must be postgres or memory"},
		{name: "bad duration", set: map[string]string{"PROVIDER_POLL_INTERVAL": "soon"}, want: "PROVIDER_POLL_INTERVAL must be a positive duration"},
		{name: "zero concurrency", set: map[string]string{"ENRICHMENT_CONCURRENCY": "0"}, want: "ENRICHMENT_CONCURRENCY must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			if tt.unset != "" {
				t.Setenv(tt.unset, "")
			}
			for k, v := range tt.set {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MemoryBackendNeedsNoInfrastructure(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("OAUTH_STATE_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Empty(t, cfg.RedisURL)
}
