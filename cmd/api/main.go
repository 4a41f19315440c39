package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autopruefer/autopruefer-api/internal/application"
	appanalysis "github.com/autopruefer/autopruefer-api/internal/application/analysis"
	apppayment "github.com/autopruefer/autopruefer-api/internal/application/payment"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/config"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
	openaiClient "github.com/autopruefer/autopruefer-api/internal/infra/ai/openai"
	mysqldb "github.com/autopruefer/autopruefer-api/internal/infra/db/mysql"
	postgresdb "github.com/autopruefer/autopruefer-api/internal/infra/db/postgres"
	"github.com/autopruefer/autopruefer-api/internal/infra/httpserver"
	"github.com/autopruefer/autopruefer-api/internal/infra/mailer"
	stripeProvider "github.com/autopruefer/autopruefer-api/internal/infra/payment/stripe"
	"github.com/autopruefer/autopruefer-api/internal/infra/pdf"
	"github.com/autopruefer/autopruefer-api/internal/infra/scraper"
	minioStore "github.com/autopruefer/autopruefer-api/internal/infra/storage"
	"github.com/autopruefer/autopruefer-api/internal/middleware"
)

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("evicted file cleanup failed path=%s err=%v", path, err)
	}
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		log.Fatalf("uploads dir error: %v", err)
	}

	// optional archive DB
	var db *sql.DB
	var archive domain.Repository
	if cfg.ArchiveEnabled() {
		switch cfg.Database.Driver {
		case "postgres":
			db, err = postgresdb.Connect(ctx, cfg.PostgresDSN())
			if err != nil {
				log.Fatalf("postgres connect error: %v", err)
			}
			archive = postgresdb.NewAnalysisRepository(db)
		default:
			db, err = mysqldb.Connect(ctx, cfg.MySQLDSN())
			if err != nil {
				log.Fatalf("mysql connect error: %v", err)
			}
			archive = mysqldb.NewAnalysisRepository(db)
		}
		defer db.Close()
	}

	// optional minio mirror
	var objects *minioStore.Store
	if cfg.Minio.Endpoint != "" {
		objects, err = minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
	}

	// optional report mail
	reportMailer, err := mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	if err != nil {
		log.Fatalf("smtp init error: %v", err)
	}

	// PDF reports
	reports, err := pdf.New(cfg.Reports.Dir)
	if err != nil {
		log.Fatalf("reports dir error: %v", err)
	}

	// TTL stores
	results := cache.New[*domain.Result](cfg.SweepEvery())
	uploads := cache.New[*domain.Upload](cfg.SweepEvery())
	quotes := cache.New[*apppayment.Quote](cfg.SweepEvery())
	defer results.Close()
	defer uploads.Close()
	defer quotes.Close()

	// expired entries take their files with them, otherwise the uploads and
	// reports dirs grow without bound
	uploads.OnEvict(func(_ string, u *domain.Upload) {
		removeFile(u.FilePath)
	})
	results.OnEvict(func(_ string, res *domain.Result) {
		if res.PDFPath != "" {
			removeFile(res.PDFPath)
		}
	})

	// services
	analysisSvc := &appanalysis.Service{
		AI:        openaiClient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
		Scraper:   scraper.New(time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second),
		Results:   results,
		PDF:       reports,
		Clock:     application.SystemClock{},
		ResultTTL: cfg.ResultTTL(),
	}
	if reportMailer != nil {
		analysisSvc.Mailer = reportMailer
	}
	if archive != nil {
		analysisSvc.Archive = archive
	}
	if objects != nil {
		analysisSvc.Objects = objects
	}

	paymentSvc := &apppayment.Service{
		Provider:      stripeProvider.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret),
		Quotes:        quotes,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		Clock:         application.SystemClock{},
		QuoteTTL:      time.Hour,
	}

	// health checks for /health/detailed
	checkers := map[string]middleware.HealthChecker{
		"openai": middleware.CheckFunc(func(context.Context) error {
			if cfg.OpenAI.APIKey == "" {
				return fmt.Errorf("api key not configured")
			}
			return nil
		}),
		"stripe": middleware.CheckFunc(func(context.Context) error {
			if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
				return fmt.Errorf("keys not configured")
			}
			return nil
		}),
	}
	if db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 1))
	mux.Mount("/", httpserver.NewRouter(cfg, analysisSvc, paymentSvc, uploads, objects, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // direct analysis waits on the model
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
