package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopruefer/autopruefer-api/internal/application"
	appanalysis "github.com/autopruefer/autopruefer-api/internal/application/analysis"
	apppayment "github.com/autopruefer/autopruefer-api/internal/application/payment"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/config"
	"github.com/autopruefer/autopruefer-api/internal/domain/ai"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
	dompayment "github.com/autopruefer/autopruefer-api/internal/domain/payment"
)

const modelReply = `1. GESAMTBEWERTUNG:
Empfehlenswert, solides Angebot zum fairen Preis.

2. HAUPTRISIKEN:
- Zweimassenschwungrad bei hoher Laufleistung prüfen lassen

3. VERDÄCHTIGE PUNKTE:
- Keine Auffälligkeiten im Inserat erkennbar

4. VERHANDLUNGSTIPPS:
- Neue Reifen als Argument für Preisnachlass nutzen

5. WEITERE EMPFEHLUNGEN:
- Unbedingt eine Probefahrt mit kaltem Motor machen
`

type stubAI struct{ reply string }

func (s stubAI) Complete(context.Context, ai.CompletionRequest) (string, error) {
	return s.reply, nil
}

type stubProvider struct {
	session *dompayment.CheckoutSession
	event   *dompayment.WebhookEvent
}

func (s *stubProvider) CreateCheckout(context.Context, dompayment.CheckoutParams) (*dompayment.CheckoutSession, error) {
	return s.session, nil
}

func (s *stubProvider) VerifyWebhook([]byte, string) (*dompayment.WebhookEvent, error) {
	return s.event, nil
}

type testEnv struct {
	handler  http.Handler
	analysis *appanalysis.Service
	provider *stubProvider
	uploads  *cache.Store[*domain.Upload]
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = "https://autopruefer.example"
	cfg.Stripe.PublishableKey = "pk_test_abc"
	cfg.Uploads.Dir = t.TempDir()
	cfg.Uploads.MaxSizeMB = 10
	cfg.Cache.UploadTTLMinutes = 60
	cfg.Admin.APIKeys = []string{"test-admin-key"}

	results := cache.New[*domain.Result](time.Minute)
	uploads := cache.New[*domain.Upload](time.Minute)
	uploads.OnEvict(func(_ string, u *domain.Upload) { _ = os.Remove(u.FilePath) })
	quotes := cache.New[*apppayment.Quote](time.Minute)
	t.Cleanup(func() {
		results.Close()
		uploads.Close()
		quotes.Close()
	})

	analysisSvc := &appanalysis.Service{
		AI:        stubAI{reply: modelReply},
		Results:   results,
		Clock:     application.SystemClock{},
		ResultTTL: time.Hour,
	}
	provider := &stubProvider{
		session: &dompayment.CheckoutSession{ID: "cs_test_new", URL: "https://checkout.stripe.com/pay/cs_test_new"},
	}
	paymentSvc := &apppayment.Service{
		Provider:      provider,
		Quotes:        quotes,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		Clock:         application.SystemClock{},
		QuoteTTL:      time.Hour,
	}

	return &testEnv{
		handler:  NewRouter(cfg, analysisSvc, paymentSvc, uploads, nil, nil),
		analysis: analysisSvc,
		provider: provider,
		uploads:  uploads,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestConfigEndpoint(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "pk_test_abc", out["publishableKey"])
	assert.Equal(t, "de", out["locale"])
}

func TestResultPendingThenReady(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/result?session_id=cs_test_poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending"`)

	err := env.analysis.AnalyzeFromSession("cs_test_poll", "", domain.Request{Plan: domain.PlanBasic})
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/result?session_id=cs_test_poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Status string         `json:"status"`
		Plan   string         `json:"plan"`
		Result *domain.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ready", out.Status)
	assert.Equal(t, "basic", out.Plan)
	require.NotNil(t, out.Result)
	assert.Equal(t, domain.VerdictRecommended, out.Result.Verdict)
}

func TestResultRequiresSessionID(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/result", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRunsAnalysisInBackground(t *testing.T) {
	env := newEnv(t)
	env.provider.event = &dompayment.WebhookEvent{
		Type:      dompayment.EventCheckoutCompleted,
		SessionID: "cs_test_hook",
		Metadata: map[string]string{
			"plan":  "standard",
			"brand": "VW",
			"model": "Golf",
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "received")

	require.Eventually(t, func() bool {
		_, ok := env.analysis.Result(context.Background(), "cs_test_hook")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	res, _ := env.analysis.Result(context.Background(), "cs_test_hook")
	assert.Equal(t, domain.PlanStandard, res.Plan)
}

func TestWebhookRequiresSignatureHeader(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/analyze", analyzeRequest{
		Plan:    "basic",
		Vehicle: domain.VehicleFacts{Brand: "BMW", Model: "320d"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.VerdictRecommended, res.Verdict)
	assert.NotEmpty(t, res.Risks)
}

func TestAnalyzeRejectsUnknownPlan(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/analyze", analyzeRequest{Plan: "gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsBlockedListingURL(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/analyze", analyzeRequest{
		Plan:       "basic",
		ListingURL: "http://localhost:8080/admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculatePriceEndpoint(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/calculate-price", priceRequest{
		Plan:      "premium",
		PromoCode: "PREMIUM50",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var quote apppayment.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, int64(1249), quote.FinalCents)
	assert.NotEmpty(t, quote.ID)
}

func TestCreateCheckoutEndpoint(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/create-checkout", checkoutRequest{
		Plan:    "standard",
		Vehicle: domain.VehicleFacts{Brand: "Audi", Model: "A4"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out dompayment.CheckoutSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "cs_test_new", out.ID)
}

func TestUploadAndServe(t *testing.T) {
	env := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	ph := textproto.MIMEHeader{}
	ph.Set("Content-Disposition", `form-data; name="photo"; filename="car.png"`)
	ph.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(ph)
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, testImage(64, 64)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		UploadID string `json:"uploadId"`
		URL      string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.UploadID)
	assert.Contains(t, out.URL, "/uploads/"+out.UploadID)

	rec = env.do(t, http.MethodGet, "/uploads/"+out.UploadID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestUploadFileRemovedOnEviction(t *testing.T) {
	env := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	ph := textproto.MIMEHeader{}
	ph.Set("Content-Disposition", `form-data; name="photo"; filename="car.png"`)
	ph.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(ph)
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, testImage(32, 32)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		UploadID string `json:"uploadId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	up, ok := env.uploads.Get(out.UploadID)
	require.True(t, ok)
	_, err = os.Stat(up.FilePath)
	require.NoError(t, err)

	env.uploads.Delete(out.UploadID)
	_, err = os.Stat(up.FilePath)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadWithoutFile(t *testing.T) {
	env := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("plan", "basic"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// doAdmin sends a request carrying the operator key configured in newEnv.
func (e *testEnv) doAdmin(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer test-admin-key")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type stubArchive struct {
	records []*domain.Archived
}

func (s *stubArchive) Save(_ context.Context, a *domain.Archived) error {
	s.records = append(s.records, a)
	return nil
}

func (s *stubArchive) GetBySession(_ context.Context, sessionID string) (*domain.Archived, error) {
	for _, a := range s.records {
		if a.SessionID == sessionID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubArchive) Paginate(context.Context, int, int) ([]*domain.Archived, error) {
	return s.records, nil
}

func TestAnalysesListWithoutArchive(t *testing.T) {
	env := newEnv(t)

	rec := env.doAdmin(t, http.MethodGet, "/api/analyses")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalysesListRejectsAnonymousCaller(t *testing.T) {
	env := newEnv(t)
	env.analysis.Archive = &stubArchive{records: []*domain.Archived{{
		SessionID:  "cs_test_private",
		Plan:       domain.PlanPremium,
		Verdict:    domain.VerdictRecommended,
		ResultJSON: `{"verdict":"empfehlenswert"}`,
	}}}

	rec := env.do(t, http.MethodGet, "/api/analyses", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "cs_test_private")
}

func TestAnalysesListWithAdminKey(t *testing.T) {
	env := newEnv(t)
	env.analysis.Archive = &stubArchive{records: []*domain.Archived{{
		SessionID:  "cs_test_private",
		Plan:       domain.PlanStandard,
		Verdict:    domain.VerdictCaution,
		ResultJSON: `{"verdict":"mit vorsicht"}`,
	}}}

	rec := env.doAdmin(t, http.MethodGet, "/api/analyses")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cs_test_private")
}

func TestMetricsRequiresAdminKey(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doAdmin(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportNotFound(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/reports/cs_test_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}
