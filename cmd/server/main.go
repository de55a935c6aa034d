package main

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"diagnosis-refiner/internal/catalog"
	"diagnosis-refiner/internal/config"
	"diagnosis-refiner/internal/diagnosis"
	"diagnosis-refiner/internal/events"
	"diagnosis-refiner/internal/pkg/logger"
	"diagnosis-refiner/internal/platform/telegram"
	"diagnosis-refiner/internal/prediction"
	"diagnosis-refiner/internal/report"
)

const logModule = "SERVER"

func main() {
	cfg := config.Load()

	appLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer appLogger.Sync()

	// 1. Infrastructure
	db := connectDB(cfg.Database.URL, appLogger)
	if db != nil {
		defer db.Close()
		runMigrations(cfg.Database.MigrationsPath, cfg.Database.URL, appLogger)
	}

	var publisher diagnosis.EventPublisher
	if cfg.Nats.URL != "" {
		p, err := events.NewPublisher(cfg.Nats.URL, appLogger)
		if err != nil {
			appLogger.Warn(logModule, "NATS unavailable, events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer p.Close()
			publisher = p
		}
	}

	// 2. Clients
	predictor := prediction.NewClient(cfg.Prediction.BaseURL, cfg.Prediction.Timeout)
	symptoms := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, cfg.Catalog.CacheTTL)
	tgClient := telegram.NewClient(cfg.Telegram.Token)

	// 3. Services
	var repo diagnosis.Repository
	if db != nil {
		repo = diagnosis.NewRepository(db)
	}

	var reportSvc diagnosis.ReportService
	if cfg.Telegram.DoctorChatID != 0 {
		reportSvc = report.NewService(tgClient, cfg.Telegram.DoctorChatID, appLogger)
	} else {
		appLogger.Warn(logModule, "DOCTOR_CHAT_ID is not set, escalation reports are disabled", nil)
	}

	store := diagnosis.NewSessionStore(cfg.App.SessionTTL)
	diagnosisSvc := diagnosis.NewService(store, repo, predictor, symptoms, reportSvc, publisher, appLogger)
	diagnosisHandler := diagnosis.NewHandler(diagnosisSvc)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors(cfg.App.CorsAllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		diagnosis.RegisterRoutes(r, diagnosisHandler)
	})

	appLogger.Info(logModule, "Server starting", map[string]interface{}{
		"port": cfg.App.Port,
		"env":  cfg.App.Environment,
	})
	if err := http.ListenAndServe(":"+cfg.App.Port, r); err != nil {
		log.Fatal(err)
	}
}

// connectDB retries for a while so the server can start alongside the
// database container. It returns nil when the database never comes up.
func connectDB(url string, appLogger logger.ILogger) *sql.DB {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", url)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			appLogger.Info(logModule, "Connected to database", nil)
			return db
		}
		if db != nil {
			db.Close()
		}
		appLogger.Info(logModule, "Waiting for database", map[string]interface{}{"attempt": i + 1})
		time.Sleep(2 * time.Second)
	}
	appLogger.Warn(logModule, "Could not connect to database, sessions will not survive restarts", map[string]interface{}{
		"error": err.Error(),
	})
	return nil
}

func runMigrations(sourceURL, dbURL string, appLogger logger.ILogger) {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		appLogger.Error(logModule, "Migration init failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		appLogger.Error(logModule, "Migration up failed", map[string]interface{}{"error": err.Error()})
		return
	}
	appLogger.Info(logModule, "Migrations applied", nil)
}

func cors(allowedOrigins string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-Id")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
