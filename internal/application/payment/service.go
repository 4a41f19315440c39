package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/autopruefer/autopruefer-api/internal/application"
	"github.com/autopruefer/autopruefer-api/internal/cache"
	"github.com/autopruefer/autopruefer-api/internal/domain/analysis"
	domain "github.com/autopruefer/autopruefer-api/internal/domain/payment"
)

// Base prices per tier in euro cents.
var basePrices = map[analysis.PlanTier]int64{
	analysis.PlanBasic:    499,
	analysis.PlanStandard: 999,
	analysis.PlanPremium:  2499,
}

// Vehicle type modifiers on the base price.
var vehicleModifiers = map[string]float64{
	"luxury":     1.2,
	"standard":   1.0,
	"commercial": 1.5,
	"classic":    1.3,
}

// Promo codes and their discount fraction. PREMIUM50 only applies to the
// premium tier.
var promoCodes = map[string]float64{
	"FIRSTTIME":   0.2,
	"AUTOPRO10":   0.1,
	"PREMIUM50":   0.5,
	"BLACKFRIDAY": 0.3,
}

var planNames = map[analysis.PlanTier]string{
	analysis.PlanBasic:    "Autoprüfer Basic",
	analysis.PlanStandard: "Autoprüfer Standard",
	analysis.PlanPremium:  "Autoprüfer Premium",
}

var planDescriptions = map[analysis.PlanTier]string{
	analysis.PlanBasic:    "Schnellanalyse",
	analysis.PlanStandard: "Detailanalyse",
	analysis.PlanPremium:  "Vollgutachten (PDF inklusive)",
}

// ErrPromoPremiumOnly is returned when PREMIUM50 is applied to a lower tier.
var ErrPromoPremiumOnly = errors.New("promo code only valid for premium analyses")

// ErrQuoteExpired is returned when a checkout references an unknown or
// expired price quote.
var ErrQuoteExpired = errors.New("price quote expired")

// Quote is one computed price, held until checkout or expiry.
type Quote struct {
	ID            string            `json:"quoteId"`
	Plan          analysis.PlanTier `json:"plan"`
	VehicleType   string            `json:"vehicleType,omitempty"`
	PromoCode     string            `json:"promoCode,omitempty"`
	OriginalCents int64             `json:"originalPrice"`
	FinalCents    int64             `json:"finalPrice"`
	DiscountCents int64             `json:"discountAmount"`
	DiscountPct   int               `json:"discountPercent"`
	CreatedAt     time.Time         `json:"-"`
}

// CheckoutCommand carries everything needed to open a provider session.
type CheckoutCommand struct {
	Plan          analysis.PlanTier
	QuoteID       string
	Vehicle       analysis.VehicleFacts
	ListingURL    string
	UploadID      string
	CustomerEmail string
}

// Service implements the pricing and checkout use-cases.
type Service struct {
	Provider      domain.Provider
	Quotes        *cache.Store[*Quote]
	PublicBaseURL string
	Clock         application.Clock
	QuoteTTL      time.Duration
}

// PriceQuote computes the dynamic price for a plan and stores it so the
// subsequent checkout charges exactly what was shown. Unknown promo codes
// are ignored rather than rejected.
func (s *Service) PriceQuote(plan analysis.PlanTier, vehicleType, promoCode string) (*Quote, error) {
	base, ok := basePrices[plan]
	if !ok {
		return nil, analysis.ErrInvalidPlan
	}

	final := base
	vehicleType = strings.ToLower(strings.TrimSpace(vehicleType))
	if mod, ok := vehicleModifiers[vehicleType]; ok {
		final = int64(math.Round(float64(base) * mod))
	}

	discount := 0.0
	promoCode = strings.ToUpper(strings.TrimSpace(promoCode))
	if d, ok := promoCodes[promoCode]; ok {
		if promoCode == "PREMIUM50" && plan != analysis.PlanPremium {
			return nil, ErrPromoPremiumOnly
		}
		discount = d
	} else {
		promoCode = ""
	}

	discountCents := int64(math.Round(float64(final) * discount))
	final -= discountCents

	q := &Quote{
		ID:            uuid.New().String(),
		Plan:          plan,
		VehicleType:   vehicleType,
		PromoCode:     promoCode,
		OriginalCents: base,
		FinalCents:    final,
		DiscountCents: discountCents,
		DiscountPct:   int(discount * 100),
		CreatedAt:     s.Clock.Now(),
	}
	s.Quotes.Set(q.ID, q, s.QuoteTTL)
	return q, nil
}

// CreateCheckout opens a provider checkout session. The amount comes from the
// referenced quote when one is given, otherwise from the plan's base price.
// The vehicle facts travel in session metadata, length-capped so the flattened
// values stay within the provider's limits, and come back on the webhook.
func (s *Service) CreateCheckout(ctx context.Context, cmd CheckoutCommand) (*domain.CheckoutSession, error) {
	if !analysis.ValidPlan(cmd.Plan) {
		return nil, analysis.ErrInvalidPlan
	}

	amount := basePrices[cmd.Plan]
	if cmd.QuoteID != "" {
		q, ok := s.Quotes.Get(cmd.QuoteID)
		if !ok {
			return nil, ErrQuoteExpired
		}
		if q.Plan != cmd.Plan {
			return nil, ErrQuoteExpired
		}
		amount = q.FinalCents
	}

	metadata := map[string]string{
		"plan":        string(cmd.Plan),
		"brand":       truncate(cmd.Vehicle.Brand, 60),
		"model":       truncate(cmd.Vehicle.Model, 60),
		"year":        truncate(cmd.Vehicle.Year, 12),
		"mileage":     truncate(cmd.Vehicle.Mileage, 12),
		"price":       truncate(cmd.Vehicle.Price, 12),
		"city":        truncate(cmd.Vehicle.City, 60),
		"vin":         truncate(cmd.Vehicle.VIN, 60),
		"description": truncate(cmd.Vehicle.Description, 450),
		"listingUrl":  truncate(cmd.ListingURL, 450),
		"uploadId":    cmd.UploadID,
	}

	session, err := s.Provider.CreateCheckout(ctx, domain.CheckoutParams{
		Plan:          string(cmd.Plan),
		AmountCents:   amount,
		ProductName:   planNames[cmd.Plan],
		Description:   planDescriptions[cmd.Plan],
		CustomerEmail: cmd.CustomerEmail,
		SuccessURL:    s.PublicBaseURL + "/?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.PublicBaseURL + "/?canceled=true",
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	return session, nil
}

// VerifyWebhook delegates to the provider's signature check.
func (s *Service) VerifyWebhook(payload []byte, signature string) (*domain.WebhookEvent, error) {
	return s.Provider.VerifyWebhook(payload, signature)
}

// truncate caps v at max bytes without splitting a multi-byte rune, Stripe
// rejects metadata values that are not valid UTF-8.
func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut]
}
