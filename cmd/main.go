// jobmate-leads-service
//
// Turns a job search into enriched, apply-ready leads and sends the
// application emails.
// Exposes a REST API used by the Gateway to implement:
//   - submitScrapeRequest, scrapeRequest, abortScrapeRequest: pipeline runs
//   - authorize, callback, status, unlink: delegated mailbox
//   - sendApplication, myEmailApplications: application emails
//
// Also serves ScrapeRequests over gRPC and publishes EVENT_SCRAPE_STATUS to
// Redis for Gateway SSE forward.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"

	"jobmate/leads-service/internal/config"
	"jobmate/leads-service/internal/credentials"
	"jobmate/leads-service/internal/db"
	"jobmate/leads-service/internal/discovery"
	"jobmate/leads-service/internal/events"
	"jobmate/leads-service/internal/grpcserver"
	"jobmate/leads-service/internal/mailer"
	"jobmate/leads-service/internal/metrics"
	"jobmate/leads-service/internal/pipeline"
	"jobmate/leads-service/internal/scheduler"
	"jobmate/leads-service/internal/scraper"
	"jobmate/leads-service/internal/store"
	"jobmate/leads-service/internal/ttlcache"
)

const version = "1.0.0"

type stores struct {
	requests     store.RequestStore
	credentials  store.CredentialStore
	applications store.ApplicationLog
}

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[leads-service] Config error: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "leads-service"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ──────────────────────────────────────────────────────────────
	var st stores
	switch cfg.StoreBackend {
	case "postgres":
		log.Println("[leads-service] Connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("[leads-service] PostgreSQL: %v", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("[leads-service] Migrate: %v", err)
		}
		log.Println("[leads-service] PostgreSQL connected ✓")
		st = stores{
			requests:     store.NewPGRequests(pool),
			credentials:  store.NewPGCredentials(pool),
			applications: store.NewPGApplications(pool),
		}
	default:
		log.Println("[leads-service] Using in-memory stores")
		st = stores{
			requests:     store.NewMemoryRequests(),
			credentials:  store.NewMemoryCredentials(),
			applications: store.NewMemoryApplications(),
		}
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	var (
		rdb       *redis.Client
		publisher events.Publisher = events.Nop{}
		pending   ttlcache.Cache
		sweepable []scheduler.Sweeper
	)
	if cfg.RedisURL != "" {
		log.Println("[leads-service] Connecting to Redis…")
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[leads-service] Redis: %v", err)
		}
		defer rdb.Close()
		log.Println("[leads-service] Redis connected ✓")
		publisher = events.NewRedisPublisher(rdb)
		pending = ttlcache.NewRedisCache(rdb, "leads:oauth-state:")
	} else {
		mem := ttlcache.NewMemoryCache()
		pending = mem
		sweepable = append(sweepable, mem)
	}

	// ── Pipeline ─────────────────────────────────────────────────────────────
	profile, err := scraper.LookupProfile(cfg.ScrapeProvider, cfg.ApifyActorID)
	if err != nil {
		log.Fatalf("[leads-service] Scrape provider: %v", err)
	}
	apify := scraper.NewApifyClient(cfg.ApifyBaseURL, cfg.ApifyToken, profile)
	orchestrator := scraper.NewOrchestrator(apify, cfg.ProviderPoll, cfg.ScrapeMaxResults)
	if cfg.ApifyToken == "" {
		slog.Warn("APIFY_API_KEY not set, scrape requests will fail")
	}
	if cfg.DiscoveryAPIKey == "" {
		slog.Warn("HUNTER_API_KEY not set, contact discovery is disabled")
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Requests:    st.requests,
		Scraper:     orchestrator,
		Finder:      discovery.NewHunterClient(cfg.DiscoveryBaseURL, cfg.DiscoveryAPIKey, cfg.DiscoveryRatePerSec),
		Publisher:   publisher,
		Concurrency: cfg.EnrichmentConcurrency,
		Budget:      cfg.MaxRunDuration,
	})
	requestSvc := pipeline.NewService(st.requests, runner, orchestrator.Provider())

	// ── Credentials & mail ───────────────────────────────────────────────────
	googleOAuth := credentials.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL, oauthEndpoint(cfg))
	credSvc := credentials.NewService(credentials.Config{
		Credentials: st.credentials,
		OAuth:       googleOAuth,
		States:      credentials.NewStateSigner(cfg.OAuthStateSecret, cfg.OAuthStateTTL),
		Pending:     pending,
		StateTTL:    cfg.OAuthStateTTL,
		AppBaseURL:  cfg.AppBaseURL,
	})

	sendGrid := mailer.NewSendGridSender(cfg.SendGridBaseURL, cfg.SendGridAPIKey, cfg.SendGridFromEmail)
	dispatcher := mailer.NewDispatcher(mailer.DispatcherConfig{
		Tokens:       credSvc,
		Delegated:    mailer.NewGmailSender(cfg.GmailBaseURL),
		Fallback:     sendGrid,
		Applications: st.applications,
	})

	// ── Sweeper ──────────────────────────────────────────────────────────────
	sched := scheduler.New(st.requests, publisher, cfg.MaxRunDuration, cfg.SweepSpec, sweepable...)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[leads-service] Scheduler: %v", err)
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	pipeline.NewHandler(requestSvc).RegisterRoutes(mux)
	credentials.NewHandler(credSvc).RegisterRoutes(mux)
	mailer.NewHandler(dispatcher).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[leads-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[leads-service] HTTP server error: %v", err)
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[leads-service] gRPC listen: %v", err)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := grpcserver.Register(grpcSrv, grpcserver.NewServer(requestSvc))

	go func() {
		log.Printf("[leads-service] gRPC listening on :%s", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("[leads-service] gRPC server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[leads-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	healthSrv.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[leads-service] Shutdown error: %v", err)
	}
	grpcSrv.GracefulStop()
	sched.Stop()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Printf("[leads-service] Runner shutdown: %v", err)
	}
	cancel()
	log.Println("[leads-service] Stopped.")
}

// oauthEndpoint applies the optional endpoint overrides used against a local
// fake during development.
func oauthEndpoint(cfg *config.Config) oauth2.Endpoint {
	ep := credentials.GoogleEndpoint
	if cfg.GoogleAuthURL != "" {
		ep.AuthURL = cfg.GoogleAuthURL
	}
	if cfg.GoogleTokenURL != "" {
		ep.TokenURL = cfg.GoogleTokenURL
	}
	return ep
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "leads-service",
		"version": version,
	})
}
