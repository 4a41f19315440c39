package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/autopruefer/autopruefer-api/internal/application"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/domain/ai"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
	"github.com/autopruefer/autopruefer-api/internal/infra/ai/prompt"
)

// PDFGenerator renders the premium report to disk and returns the file path.
type PDFGenerator interface {
	Generate(sessionID string, vehicle domain.VehicleFacts, res *domain.Result) (string, error)
}

// ReportMailer delivers a finished report. A nil implementation skips sending.
type ReportMailer interface {
	SendReport(ctx context.Context, to string, res *domain.Result) error
}

// ObjectStore mirrors rendered reports to object storage.
type ObjectStore interface {
	UploadFile(ctx context.Context, localPath, key string) (string, error)
}

// Service implements the analysis use-cases.
// Safe for concurrent use; the webhook path calls it from goroutines.
type Service struct {
	AI        ai.Client
	Scraper   domain.Scraper
	Results   *cache.Store[*domain.Result]
	PDF       PDFGenerator
	Mailer    ReportMailer
	Objects   ObjectStore       // optional report mirror
	Archive   domain.Repository // optional, nil disables archiving
	Clock     application.Clock
	ResultTTL time.Duration
}

// RequestFromMetadata rebuilds the analysis request the checkout flow
// flattened into Stripe session metadata. Absent keys come back empty.
func RequestFromMetadata(md map[string]string, photoURLs []string) domain.Request {
	plan := domain.PlanTier(md["plan"])
	if !domain.ValidPlan(plan) {
		plan = domain.PlanBasic
	}
	return domain.Request{
		Plan: plan,
		Vehicle: domain.VehicleFacts{
			Brand:       md["brand"],
			Model:       md["model"],
			Year:        md["year"],
			Mileage:     md["mileage"],
			Price:       md["price"],
			City:        md["city"],
			VIN:         md["vin"],
			Description: md["description"],
		},
		ListingURL: md["listingUrl"],
		PhotoURLs:  photoURLs,
	}
}

// Analyze runs one analysis end to end: scrape (best effort), prompt, model
// call, parse. It never inspects the report for errors; malformed model output
// still yields a Result.
func (s *Service) Analyze(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if !domain.ValidPlan(req.Plan) {
		return nil, domain.ErrInvalidPlan
	}

	if req.ListingURL != "" && req.ListingText == "" && s.Scraper != nil {
		req.ListingText = s.Scraper.ScrapeListing(ctx, req.ListingURL)
	}

	text, err := s.AI.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: prompt.SystemPrompt(req.Plan),
		UserPrompt:   prompt.UserPrompt(req),
		ImageURLs:    req.PhotoURLs,
		MaxTokens:    prompt.MaxTokens(req.Plan),
		Temperature:  prompt.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}

	res := domain.ParseReport(text, req.Plan)
	s.stamp(&res)
	return &res, nil
}

// AnalyzeFromSession is the webhook entry point. It runs with
// context.Background() so it survives the already-acked HTTP request, stores
// the result (or the canned fallback) under the checkout session id, renders
// the premium PDF and mails the report best effort. The returned error is the
// model failure, reported for metrics only; a result is stored either way.
func (s *Service) AnalyzeFromSession(sessionID, customerEmail string, req domain.Request) error {
	ctx := context.Background()

	res, err := s.Analyze(ctx, req)
	if err != nil {
		log.Printf("analysis failed session_id=%s err=%v", sessionID, err)
		fallback := domain.ParseReport(prompt.FallbackReport(), req.Plan)
		s.stamp(&fallback)
		s.Results.Set(sessionID, &fallback, s.ResultTTL)
		return err
	}

	if req.Plan == domain.PlanPremium && s.PDF != nil {
		path, pdfErr := s.PDF.Generate(sessionID, req.Vehicle, res)
		if pdfErr != nil {
			log.Printf("pdf generation failed session_id=%s err=%v", sessionID, pdfErr)
		} else {
			res.PDFPath = path
			if s.Objects != nil {
				if _, upErr := s.Objects.UploadFile(ctx, path, "reports/"+filepath.Base(path)); upErr != nil {
					log.Printf("report mirror failed session_id=%s err=%v", sessionID, upErr)
				}
			}
		}
	}

	s.Results.Set(sessionID, res, s.ResultTTL)

	if s.Mailer != nil && customerEmail != "" {
		if mailErr := s.Mailer.SendReport(ctx, customerEmail, res); mailErr != nil {
			log.Printf("report mail failed session_id=%s err=%v", sessionID, mailErr)
		}
	}

	s.archive(ctx, sessionID, res)
	return nil
}

// ListArchived pages through the archive, newest first. ErrNotFound when no
// archive DB is configured.
func (s *Service) ListArchived(ctx context.Context, page, pageSize int) ([]*domain.Archived, error) {
	if s.Archive == nil {
		return nil, domain.ErrNotFound
	}
	return s.Archive.Paginate(ctx, page, pageSize)
}

// Result returns the stored analysis for a checkout session. After the cache
// entry has expired it falls back to the archive when one is configured; a
// restored result carries no PDF path, the file shares the cache entry's
// lifetime.
func (s *Service) Result(ctx context.Context, sessionID string) (*domain.Result, bool) {
	if res, ok := s.Results.Get(sessionID); ok {
		return res, true
	}
	if s.Archive == nil {
		return nil, false
	}
	rec, err := s.Archive.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, false
	}
	var res domain.Result
	if err := json.Unmarshal([]byte(rec.ResultJSON), &res); err != nil {
		log.Printf("archived result unreadable session_id=%s err=%v", sessionID, err)
		return nil, false
	}
	return &res, true
}

func (s *Service) stamp(res *domain.Result) {
	now := s.Clock.Now()
	res.CreatedAt = now
	res.ExpiresAt = now.Add(s.ResultTTL)
}

// archive writes the finished analysis to the optional DB. Fire and forget:
// the cache copy is authoritative for the client, so failures only log.
func (s *Service) archive(ctx context.Context, sessionID string, res *domain.Result) {
	if s.Archive == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		log.Printf("archive marshal failed session_id=%s err=%v", sessionID, err)
		return
	}
	rec := &domain.Archived{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Plan:       res.Plan,
		Verdict:    res.Verdict,
		ResultJSON: string(raw),
		CreatedAt:  res.CreatedAt,
	}
	if err := s.Archive.Save(ctx, rec); err != nil {
		log.Printf("archive save failed session_id=%s err=%v", sessionID, err)
	}
}
