package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidatePlan checks if the plan tier is in the allowed list
func ValidatePlan(plan string) error {
	allowed := map[string]bool{
		"basic":    true,
		"standard": true,
		"premium":  true,
	}

	if !allowed[strings.ToLower(plan)] {
		return fmt.Errorf("invalid plan: %s (allowed: basic, standard, premium)", plan)
	}
	return nil
}

// supported listing platforms; anything else is scraped best-effort with the
// generic selectors
var knownListingHosts = []string{"mobile.de", "autoscout24", "kleinanzeigen.de"}

// ValidateListingURL validates and sanitizes listing URLs
func ValidateListingURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}

	// Check for localhost/internal IPs (SSRF protection)
	host := strings.ToLower(u.Hostname())
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1"}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
	}

	// Block private IP ranges (basic check)
	if strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "192.168.") ||
		strings.HasPrefix(host, "172.16.") ||
		strings.HasPrefix(host, "172.31.") {
		return fmt.Errorf("private IP ranges are not allowed")
	}

	return nil
}

// IsKnownListingHost reports whether dedicated scraping selectors exist for the URL
func IsKnownListingHost(rawURL string) bool {
	for _, h := range knownListingHosts {
		if strings.Contains(rawURL, h) {
			return true
		}
	}
	return false
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateSessionID validates a checkout session id used as a result key
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	// Stripe checkout session ids look like cs_test_... / cs_live_...;
	// allow the broader token charset, length-capped
	pattern := `^[a-zA-Z0-9_-]{8,128}$`
	matched, _ := regexp.MatchString(pattern, sessionID)
	if !matched {
		return fmt.Errorf("invalid session id format")
	}

	return nil
}

// ValidateUploadID validates a generated upload id
func ValidateUploadID(uploadID string) error {
	if uploadID == "" {
		return fmt.Errorf("upload id cannot be empty")
	}

	// UUID format
	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	matched, _ := regexp.MatchString(pattern, uploadID)
	if !matched {
		return fmt.Errorf("invalid upload id format")
	}

	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
