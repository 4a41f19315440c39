// Package scraper pulls a best-effort plain-text excerpt out of German
// car-listing pages. Every failure degrades to an empty string; scraping never
// blocks an analysis.
package scraper

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	userAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxTextLen  = 3000
	defaultWait = 10 * time.Second
)

type Service struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultWait
	}
	return &Service{timeout: timeout}
}

// ScrapeListing fetches the page and extracts title, price, key facts and free
// text using per-platform selectors, capped at 3000 characters.
func (s *Service) ScrapeListing(ctx context.Context, url string) string {
	var lines []string
	appendText := func(e *colly.HTMLElement) {
		if t := strings.TrimSpace(e.Text); t != "" {
			lines = append(lines, t)
		}
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "de-DE,de;q=0.9")
	})

	switch {
	case strings.Contains(url, "mobile.de"):
		c.OnHTML(".g-col-12 h1", appendText)
		c.OnHTML(".price-block", appendText)
		c.OnHTML(".key-features__item", appendText)
		c.OnHTML(".description-text", appendText)
	case strings.Contains(url, "autoscout24"):
		c.OnHTML("h1", appendText)
		c.OnHTML(".cldt-stage-price", appendText)
		c.OnHTML(".cldt-stage-primary-keyfact", appendText)
		c.OnHTML(".cldt-stage-description", appendText)
	case strings.Contains(url, "kleinanzeigen.de"):
		c.OnHTML("#viewad-title", appendText)
		c.OnHTML("#viewad-price", appendText)
		c.OnHTML("#viewad-description-text", appendText)
	default:
		c.OnHTML("h1", appendText)
		c.OnHTML("article p", appendText)
	}

	if err := c.Visit(url); err != nil {
		log.Printf("scrape error for %s: %v", url, err)
		return ""
	}
	c.Wait()

	text := strings.Join(lines, "\n")
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}
	return text
}
