package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"kycflow/internal/addressproof"
	"kycflow/internal/audit"
	"kycflow/internal/biometric"
	"kycflow/internal/docauth"
	"kycflow/internal/handler"
	"kycflow/internal/liveness"
	"kycflow/internal/metrics"
	"kycflow/internal/middleware"
	"kycflow/internal/ocr"
	"kycflow/internal/repository/postgres"
	"kycflow/internal/risk"
	"kycflow/internal/screening"
	"kycflow/internal/workflow"
	"kycflow/pkg/cache"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"
	"kycflow/pkg/validator"
)

func main() {
	// Deployed environments carry config in real environment variables.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("kycflow")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting verification service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		log.Fatal("Database ping failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Redis connected", nil)

	// Persistence
	decisionRepo := postgres.NewDecisionRepository(db)
	resultCache := audit.NewRedisResultCache(cache.NewFromClient(redisClient), cfg.Verification.ResultCacheTTL)
	recorder := audit.NewRecorder(decisionRepo, resultCache, log)

	// Verification providers
	ocrService := ocr.NewMockOCRService(cfg, log)
	docauthService := docauth.NewMockAuthenticityService(cfg, log)
	biometricService := biometric.NewMockMatcherService(cfg, log)
	livenessService := liveness.NewMockDetectorService(cfg, log)
	addressService := addressproof.NewMockVerifierService(cfg, log)
	screeningService := screening.NewScreeningService(screening.NewEmptyDataSource(), cfg, log)
	riskEngine := risk.NewEngine()

	m := metrics.New()

	workflowService := workflow.NewService(
		ocrService,
		docauthService,
		biometricService,
		livenessService,
		addressService,
		screeningService,
		riskEngine,
		recorder,
		m,
		cfg,
		log,
	)

	// Handlers
	val := validator.New()
	verificationHandler := handler.NewVerificationHandler(workflowService, recorder, val, log)
	progressHandler := handler.NewProgressHandler(workflowService, log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(16 << 20))
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Health and metrics routes (no auth)
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db, redisClient)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Protected routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(middleware.NewRateLimiter(redisClient, 60, time.Minute).Limit)

	verifications := api.PathPrefix("/verifications").Subrouter()
	verifications.HandleFunc("", verificationHandler.CreateVerification).Methods("POST")
	verifications.HandleFunc("/quick", verificationHandler.QuickVerification).Methods("POST")
	verifications.HandleFunc("/{id}", verificationHandler.GetVerification).Methods("GET")
	verifications.HandleFunc("/{id}/retry", verificationHandler.RetryVerification).Methods("POST")
	verifications.HandleFunc("/{id}/status", verificationHandler.GetProgress).Methods("GET")
	verifications.HandleFunc("/{id}/progress", progressHandler.StreamProgress).Methods("GET")

	decisions := api.PathPrefix("/decisions").Subrouter()
	decisions.HandleFunc("", verificationHandler.ListDecisions).Methods("GET")
	decisions.HandleFunc("/export", verificationHandler.ExportDecisions).Methods("GET")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Verification service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Server exited", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"kycflow","time":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func readyCheck(db *sqlx.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unavailable","reason":"database"}`)
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unavailable","reason":"redis"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ready"}`)
	}
}
