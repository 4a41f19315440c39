package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopruefer/autopruefer-api/internal/application"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/domain/ai"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

const fakeReport = `1. GESAMTBEWERTUNG:
Empfehlenswert, gepflegtes Fahrzeug mit vollständiger Historie.

2. HAUPTRISIKEN:
- Steuerkette bei diesem Motor ab 150.000 km anfällig

3. VERDÄCHTIGE PUNKTE:
- Keine Auffälligkeiten im Inserat erkennbar

4. VERHANDLUNGSTIPPS:
- Fällige Inspektion als Preisargument nutzen

5. WEITERE EMPFEHLUNGEN:
- Kaltstart anhören und Probefahrt auf der Autobahn machen
`

type fakeAI struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []ai.CompletionRequest
}

func (f *fakeAI) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

type fakeScraper struct{ text string }

func (f fakeScraper) ScrapeListing(context.Context, string) string { return f.text }

type fakePDF struct {
	path string
	err  error
}

func (f fakePDF) Generate(string, domain.VehicleFacts, *domain.Result) (string, error) {
	return f.path, f.err
}

func newService(t *testing.T, client ai.Client) *Service {
	t.Helper()
	store := cache.New[*domain.Result](time.Minute)
	t.Cleanup(store.Close)
	return &Service{
		AI:        client,
		Results:   store,
		Clock:     application.SystemClock{},
		ResultTTL: time.Hour,
	}
}

func TestAnalyzeParsesModelOutput(t *testing.T) {
	client := &fakeAI{reply: fakeReport}
	svc := newService(t, client)

	res, err := svc.Analyze(context.Background(), domain.Request{Plan: domain.PlanBasic})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictRecommended, res.Verdict)
	assert.Len(t, res.Risks, 1)
	assert.False(t, res.CreatedAt.IsZero())
	assert.True(t, res.ExpiresAt.After(res.CreatedAt))
}

func TestAnalyzeRejectsUnknownPlan(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})

	_, err := svc.Analyze(context.Background(), domain.Request{Plan: "gold"})
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestAnalyzeUsesScrapedListingText(t *testing.T) {
	client := &fakeAI{reply: fakeReport}
	svc := newService(t, client)
	svc.Scraper = fakeScraper{text: "BMW 320d, 89.000 km, Scheckheft"}

	_, err := svc.Analyze(context.Background(), domain.Request{
		Plan:       domain.PlanStandard,
		ListingURL: "https://www.mobile.de/inserat/123",
	})
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].UserPrompt, "Scheckheft")
	assert.Equal(t, 2000, client.calls[0].MaxTokens)
}

func TestAnalyzeFromSessionStoresResult(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})

	err := svc.AnalyzeFromSession("cs_test_ok", "", domain.Request{Plan: domain.PlanBasic})
	require.NoError(t, err)

	res, ok := svc.Result(context.Background(), "cs_test_ok")
	require.True(t, ok)
	assert.Equal(t, domain.VerdictRecommended, res.Verdict)
	assert.Equal(t, domain.PlanBasic, res.Plan)
}

func TestAnalyzeFromSessionStoresFallbackOnModelError(t *testing.T) {
	svc := newService(t, &fakeAI{err: errors.New("upstream down")})

	err := svc.AnalyzeFromSession("cs_test_fail", "", domain.Request{Plan: domain.PlanBasic})
	require.Error(t, err)

	// the client must still see a finished report
	res, ok := svc.Result(context.Background(), "cs_test_fail")
	require.True(t, ok)
	assert.Equal(t, domain.VerdictCaution, res.Verdict)
	assert.NotEmpty(t, res.Recommendations)
}

func TestAnalyzeFromSessionRendersPremiumPDF(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})
	svc.PDF = fakePDF{path: "/tmp/analyse-cs_test_pdf.pdf"}

	err := svc.AnalyzeFromSession("cs_test_pdf", "", domain.Request{Plan: domain.PlanPremium})
	require.NoError(t, err)

	res, ok := svc.Result(context.Background(), "cs_test_pdf")
	require.True(t, ok)
	assert.Equal(t, "/tmp/analyse-cs_test_pdf.pdf", res.PDFPath)
}

func TestAnalyzeFromSessionKeepsResultWhenPDFFails(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})
	svc.PDF = fakePDF{err: errors.New("disk full")}

	err := svc.AnalyzeFromSession("cs_test_nopdf", "", domain.Request{Plan: domain.PlanPremium})
	require.NoError(t, err)

	res, ok := svc.Result(context.Background(), "cs_test_nopdf")
	require.True(t, ok)
	assert.Empty(t, res.PDFPath)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []*domain.Archived
}

func (f *fakeArchive) Save(_ context.Context, a *domain.Archived) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeArchive) GetBySession(_ context.Context, sessionID string) (*domain.Archived, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.saved {
		if a.SessionID == sessionID {
			return a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeArchive) Paginate(context.Context, int, int) ([]*domain.Archived, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func TestAnalyzeFromSessionArchivesResult(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})
	archive := &fakeArchive{}
	svc.Archive = archive

	err := svc.AnalyzeFromSession("cs_test_arch", "", domain.Request{Plan: domain.PlanStandard})
	require.NoError(t, err)

	require.Len(t, archive.saved, 1)
	rec := archive.saved[0]
	assert.Equal(t, "cs_test_arch", rec.SessionID)
	assert.Equal(t, domain.PlanStandard, rec.Plan)
	assert.Equal(t, domain.VerdictRecommended, rec.Verdict)
	assert.Contains(t, rec.ResultJSON, `"verdict"`)
}

func TestResultFallsBackToArchiveAfterCacheExpiry(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})
	archive := &fakeArchive{}
	svc.Archive = archive

	err := svc.AnalyzeFromSession("cs_test_expired", "", domain.Request{Plan: domain.PlanStandard})
	require.NoError(t, err)

	// simulate the cache entry aging out
	svc.Results.Delete("cs_test_expired")
	_, ok := svc.Results.Get("cs_test_expired")
	require.False(t, ok)

	res, ok := svc.Result(context.Background(), "cs_test_expired")
	require.True(t, ok)
	assert.Equal(t, domain.VerdictRecommended, res.Verdict)
	assert.Equal(t, domain.PlanStandard, res.Plan)
	assert.Empty(t, res.PDFPath)
}

func TestResultMissWithoutArchive(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})

	_, ok := svc.Result(context.Background(), "cs_test_unknown")
	assert.False(t, ok)
}

func TestListArchivedWithoutArchive(t *testing.T) {
	svc := newService(t, &fakeAI{reply: fakeReport})

	_, err := svc.ListArchived(context.Background(), 1, 20)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestFromMetadata(t *testing.T) {
	req := RequestFromMetadata(map[string]string{
		"plan":    "premium",
		"brand":   "BMW",
		"model":   "320d",
		"year":    "2018",
		"mileage": "89000",
		"price":   "18500",
		"city":    "München",
	}, []string{"data:image/jpeg;base64,AAAA"})

	assert.Equal(t, domain.PlanPremium, req.Plan)
	assert.Equal(t, "BMW", req.Vehicle.Brand)
	assert.Equal(t, "München", req.Vehicle.City)
	assert.Len(t, req.PhotoURLs, 1)
}

func TestRequestFromMetadataUnknownPlanFallsBackToBasic(t *testing.T) {
	req := RequestFromMetadata(map[string]string{"plan": "deluxe"}, nil)
	assert.Equal(t, domain.PlanBasic, req.Plan)
}
