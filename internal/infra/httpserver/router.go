package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	appanalysis "github.com/autopruefer/autopruefer-api/internal/application/analysis"
	apppayment "github.com/autopruefer/autopruefer-api/internal/application/payment"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/config"
	domai "github.com/autopruefer/autopruefer-api/internal/domain/ai"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
	dompayment "github.com/autopruefer/autopruefer-api/internal/domain/payment"
	"github.com/autopruefer/autopruefer-api/internal/infra/images"
	"github.com/autopruefer/autopruefer-api/internal/infra/storage"
	"github.com/autopruefer/autopruefer-api/internal/middleware"
)

const webhookBodyLimit = 1 << 20 // Stripe events stay well under 1MB

type Router struct {
	cfg         *config.Config
	analysisSvc *appanalysis.Service
	paymentSvc  *apppayment.Service
	uploads     *cache.Store[*domain.Upload]
	objects     *storage.Store // optional mirror, nil when not configured
}

func NewRouter(
	cfg *config.Config,
	analysisSvc *appanalysis.Service,
	paymentSvc *apppayment.Service,
	uploads *cache.Store[*domain.Upload],
	objects *storage.Store,
	checkers map[string]middleware.HealthChecker,
) http.Handler {
	r := &Router{
		cfg:         cfg,
		analysisSvc: analysisSvc,
		paymentSvc:  paymentSvc,
		uploads:     uploads,
		objects:     objects,
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Stripe-Signature"},
		MaxAge:         300,
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.ReadinessHandler)
	mux.Get("/health/detailed", middleware.HealthHandler(checkers))

	// operator endpoints, key-gated
	admin := middleware.AdminKeyAuth(cfg.Admin.APIKeys)
	mux.With(admin).Get("/metrics", middleware.MetricsHandler)
	mux.With(admin).Get("/api/analyses", r.wrap(r.handleAnalysesList))

	mux.Get("/api/config", r.wrap(r.handleConfig))
	mux.Post("/api/upload", r.wrap(r.handleUpload))
	mux.Get("/uploads/{id}", r.wrap(r.handleServeUpload))
	mux.Post("/api/analyze", r.wrap(r.handleAnalyze))
	mux.Post("/api/calculate-price", r.wrap(r.handleCalculatePrice))
	mux.Post("/api/create-checkout", r.wrap(r.handleCreateCheckout))
	mux.Post("/api/stripe/webhook", r.wrap(r.handleStripeWebhook))
	mux.Get("/api/result", r.wrap(r.handleResult))
	mux.Get("/reports/{sessionID}", r.wrap(r.handleReport))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidPlan):
				writeError(w, http.StatusBadRequest, "Ungültiger Plan.")
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "Nicht gefunden.")
			case errors.Is(err, apppayment.ErrPromoPremiumOnly):
				writeError(w, http.StatusBadRequest, "Dieser Code gilt nur für Premium-Analysen.")
			case errors.Is(err, apppayment.ErrQuoteExpired):
				writeError(w, http.StatusBadRequest, "Sitzung abgelaufen. Bitte aktualisieren Sie die Seite.")
			case errors.Is(err, domai.ErrQuotaExceeded):
				writeError(w, http.StatusTooManyRequests, "Analyse-Kontingent erschöpft. Bitte später erneut versuchen.")
			default:
				log.Printf("handler error path=%s err=%v", req.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Interner Serverfehler.")
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GET /api/config
func (r *Router) handleConfig(w http.ResponseWriter, req *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{
		"publishableKey": r.cfg.Stripe.PublishableKey,
		"locale":         "de",
	})
	return nil
}

// POST /api/upload
// Multipart field "photo". The image is re-encoded before it ever touches
// disk, so whatever was uploaded is stored as a bounded JPEG.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	maxBytes := r.cfg.Uploads.MaxSizeMB << 20
	req.Body = http.MaxBytesReader(w, req.Body, maxBytes)

	if err := req.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Upload zu groß oder ungültig.")
		return nil
	}
	file, header, err := req.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Kein Foto hochgeladen.")
		return nil
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, "Nur Bilddateien erlaubt.")
		return nil
	}

	processed, err := images.Process(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bild konnte nicht verarbeitet werden.")
		return nil
	}

	id := uuid.New().String()
	path := filepath.Join(r.cfg.Uploads.Dir, id+".jpg")
	if err := os.WriteFile(path, processed, 0o644); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}

	upload := &domain.Upload{ID: id, FilePath: path, CreatedAt: r.analysisSvc.Clock.Now()}
	if r.objects != nil {
		url, upErr := r.objects.UploadBytes(req.Context(), "uploads/"+id+".jpg", processed, "image/jpeg")
		if upErr != nil {
			log.Printf("upload mirror failed id=%s err=%v", id, upErr)
		} else {
			upload.RemoteURL = url
		}
	}
	r.uploads.Set(id, upload, r.cfg.UploadTTL())

	writeJSON(w, http.StatusOK, map[string]any{
		"uploadId":  id,
		"url":       r.cfg.Server.PublicBaseURL + "/uploads/" + id,
		"expiresAt": upload.CreatedAt.Add(r.cfg.UploadTTL()),
	})
	return nil
}

// GET /uploads/{id}
func (r *Router) handleServeUpload(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateUploadID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Upload-ID.")
		return nil
	}
	upload, ok := r.uploads.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Nicht gefunden.")
		return nil
	}
	if _, err := os.Stat(upload.FilePath); err != nil {
		writeError(w, http.StatusGone, "Datei abgelaufen.")
		return nil
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, req, upload.FilePath)
	return nil
}

type analyzeRequest struct {
	Plan       string              `json:"plan"`
	Vehicle    domain.VehicleFacts `json:"vehicleData"`
	ListingURL string              `json:"listingUrl,omitempty"`
	UploadID   string              `json:"uploadId,omitempty"`
}

// POST /api/analyze
// Direct analysis without a payment, used for development and internal tools.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body analyzeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return nil
	}
	if err := middleware.ValidatePlan(body.Plan); err != nil {
		return domain.ErrInvalidPlan
	}
	if body.ListingURL != "" {
		if err := middleware.ValidateListingURL(body.ListingURL); err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Inserat-URL.")
			return nil
		}
		if !middleware.IsKnownListingHost(body.ListingURL) {
			log.Printf("no dedicated selectors for listing host, scraping generic url=%s", body.ListingURL)
		}
	}

	res, err := r.analysisSvc.Analyze(req.Context(), domain.Request{
		Plan:       domain.PlanTier(strings.ToLower(body.Plan)),
		Vehicle:    sanitizeFacts(body.Vehicle),
		ListingURL: body.ListingURL,
		PhotoURLs:  r.photoDataURLs(body.UploadID),
	})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}
	middleware.IncrementAnalyses(res.Plan == domain.PlanPremium)

	writeJSON(w, http.StatusOK, res)
	return nil
}

type priceRequest struct {
	Plan        string `json:"plan"`
	VehicleType string `json:"vehicleType,omitempty"`
	PromoCode   string `json:"promoCode,omitempty"`
}

// POST /api/calculate-price
func (r *Router) handleCalculatePrice(w http.ResponseWriter, req *http.Request) error {
	var body priceRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return nil
	}
	quote, err := r.paymentSvc.PriceQuote(domain.PlanTier(strings.ToLower(body.Plan)), body.VehicleType, body.PromoCode)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, quote)
	return nil
}

type checkoutRequest struct {
	Plan          string              `json:"plan"`
	QuoteID       string              `json:"quoteId,omitempty"`
	Vehicle       domain.VehicleFacts `json:"vehicleData"`
	ListingURL    string              `json:"listingUrl,omitempty"`
	UploadID      string              `json:"uploadId,omitempty"`
	CustomerEmail string              `json:"customerEmail,omitempty"`
}

// POST /api/create-checkout
func (r *Router) handleCreateCheckout(w http.ResponseWriter, req *http.Request) error {
	var body checkoutRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige Anfrage.")
		return nil
	}
	if err := middleware.ValidatePlan(body.Plan); err != nil {
		return domain.ErrInvalidPlan
	}
	if body.ListingURL != "" {
		if err := middleware.ValidateListingURL(body.ListingURL); err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Inserat-URL.")
			return nil
		}
	}
	if body.UploadID != "" {
		if err := middleware.ValidateUploadID(body.UploadID); err != nil {
			writeError(w, http.StatusBadRequest, "Ungültige Upload-ID.")
			return nil
		}
	}

	session, err := r.paymentSvc.CreateCheckout(req.Context(), apppayment.CheckoutCommand{
		Plan:          domain.PlanTier(strings.ToLower(body.Plan)),
		QuoteID:       body.QuoteID,
		Vehicle:       sanitizeFacts(body.Vehicle),
		ListingURL:    body.ListingURL,
		UploadID:      body.UploadID,
		CustomerEmail: body.CustomerEmail,
	})
	if err != nil {
		return err
	}
	middleware.IncrementCheckouts()

	writeJSON(w, http.StatusOK, session)
	return nil
}

// POST /api/stripe/webhook
// Signature is verified over the raw body; the analysis runs in the
// background so the provider gets its 200 immediately.
func (r *Router) handleStripeWebhook(w http.ResponseWriter, req *http.Request) error {
	payload, err := io.ReadAll(io.LimitReader(req.Body, webhookBodyLimit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Body nicht lesbar.")
		return nil
	}
	sig := req.Header.Get("Stripe-Signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, "Stripe-Signature fehlt.")
		return nil
	}

	event, err := r.paymentSvc.VerifyWebhook(payload, sig)
	if err != nil {
		log.Printf("webhook signature rejected err=%v", err)
		writeError(w, http.StatusBadRequest, "Ungültige Signatur.")
		return nil
	}
	middleware.IncrementWebhooks()

	if event.Type == dompayment.EventCheckoutCompleted {
		analysisReq := appanalysis.RequestFromMetadata(event.Metadata, r.photoDataURLs(event.Metadata["uploadId"]))
		sessionID := event.SessionID
		email := event.CustomerEmail
		go func() {
			if err := r.analysisSvc.AnalyzeFromSession(sessionID, email, analysisReq); err != nil {
				middleware.IncrementAnalysesFailed()
				return
			}
			middleware.IncrementAnalyses(analysisReq.Plan == domain.PlanPremium)
		}()
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	return nil
}

// GET /api/result?session_id=
func (r *Router) handleResult(w http.ResponseWriter, req *http.Request) error {
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id fehlt.")
		return nil
	}
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige session_id.")
		return nil
	}

	res, ok := r.analysisSvc.Result(req.Context(), sessionID)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return nil
	}

	out := map[string]any{
		"status": "ready",
		"plan":   res.Plan,
		"result": res,
	}
	if res.PDFPath != "" {
		out["pdfUrl"] = r.cfg.Server.PublicBaseURL + "/reports/" + sessionID
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// GET /api/analyses?page=&page_size=
// Pages through the archive DB; 404 when no archive is configured.
func (r *Router) handleAnalysesList(w http.ResponseWriter, req *http.Request) error {
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.analysisSvc.ListArchived(req.Context(), page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /reports/{sessionID}
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	sessionID := chi.URLParam(req, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültige session_id.")
		return nil
	}

	res, ok := r.analysisSvc.Result(req.Context(), sessionID)
	if !ok || res.PDFPath == "" {
		writeError(w, http.StatusNotFound, "Report nicht gefunden.")
		return nil
	}
	if _, err := os.Stat(res.PDFPath); err != nil {
		writeError(w, http.StatusGone, "Report abgelaufen.")
		return nil
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "Autopruefer-"+sessionID+".pdf"))
	http.ServeFile(w, req, res.PDFPath)
	return nil
}

// photoDataURLs turns a claimed upload into vision-ready data URLs. A missing
// or expired upload degrades to no photos, same as scraping.
func (r *Router) photoDataURLs(uploadID string) []string {
	if uploadID == "" {
		return nil
	}
	upload, ok := r.uploads.Get(uploadID)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(upload.FilePath)
	if err != nil {
		log.Printf("upload read failed id=%s err=%v", uploadID, err)
		return nil
	}
	return []string{images.DataURL(data)}
}

func sanitizeFacts(v domain.VehicleFacts) domain.VehicleFacts {
	v.Brand = middleware.SanitizeString(v.Brand)
	v.Model = middleware.SanitizeString(v.Model)
	v.Year = middleware.SanitizeString(v.Year)
	v.Mileage = middleware.SanitizeString(v.Mileage)
	v.Price = middleware.SanitizeString(v.Price)
	v.City = middleware.SanitizeString(v.City)
	v.VIN = middleware.SanitizeString(v.VIN)
	v.Description = middleware.SanitizeString(v.Description)
	return v
}
