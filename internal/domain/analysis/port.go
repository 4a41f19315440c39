package analysis

import "context"

// Repository port for the optional archive of completed analyses
type Repository interface {
	Save(ctx context.Context, a *Archived) error
	GetBySession(ctx context.Context, sessionID string) (*Archived, error)
	Paginate(ctx context.Context, page, pageSize int) ([]*Archived, error)
}

// Scraper port: best-effort plain-text excerpt of a listing page.
// Implementations must degrade to "" on any failure and never return an error
// that aborts an analysis.
type Scraper interface {
	ScrapeListing(ctx context.Context, url string) string
}
