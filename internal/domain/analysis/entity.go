package analysis

import (
	"time"
)

// PlanTier enum
type PlanTier string

const (
	PlanBasic    PlanTier = "basic"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

// ValidPlan reports whether p is one of the known tiers.
func ValidPlan(p PlanTier) bool {
	switch p {
	case PlanBasic, PlanStandard, PlanPremium:
		return true
	}
	return false
}

// Verdict enum
type Verdict string

const (
	VerdictRecommended    Verdict = "recommended"
	VerdictCaution        Verdict = "caution"
	VerdictNotRecommended Verdict = "not_recommended"
)

// VehicleFacts holds the buyer-supplied listing facts
type VehicleFacts struct {
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Year        string `json:"year"`
	Mileage     string `json:"mileage"`
	Price       string `json:"price"`
	City        string `json:"city,omitempty"`
	VIN         string `json:"vin,omitempty"`
	Description string `json:"description,omitempty"`
}

// Request is the ephemeral, request-scoped analysis input
type Request struct {
	Plan        PlanTier
	Vehicle     VehicleFacts
	ListingURL  string
	ListingText string
	PhotoURLs   []string // data URLs or public URLs usable by the vision API
}

// MonthlyCosts value object, euro per month
type MonthlyCosts struct {
	Fuel         int `json:"fuel"`
	Insurance    int `json:"insurance"`
	Maintenance  int `json:"maintenance"`
	Tax          int `json:"tax"`
	Depreciation int `json:"depreciation"`
	Total        int `json:"total"`
}

// KeyStats value object, free-floating numbers scraped from the whole report
type KeyStats struct {
	FuelConsumption   float64 `json:"fuelConsumption"`   // L/100km
	AnnualInsurance   float64 `json:"annualInsurance"`   // €/Jahr
	AnnualMaintenance float64 `json:"annualMaintenance"` // €/Jahr
	ResalePercentage  float64 `json:"resalePercentage"`  // % after 3 years
}

// Result is the structured report parsed out of one LLM completion.
// Extended fields are only populated for the premium tier.
type Result struct {
	Verdict          Verdict  `json:"verdict"`
	Summary          string   `json:"summary"`
	Risks            []string `json:"risks"`
	SuspiciousPoints []string `json:"suspiciousPoints"`
	Negotiation      []string `json:"negotiation"`
	Recommendations  []string `json:"recommendations"`

	TechnicalDetails []string      `json:"technicalDetails,omitempty"`
	MonthlyCosts     *MonthlyCosts `json:"monthlyCosts,omitempty"`
	MarketAnalysis   []string      `json:"marketAnalysis,omitempty"`
	Stats            *KeyStats     `json:"stats,omitempty"`

	Plan      PlanTier  `json:"plan"`
	RawText   string    `json:"-"`
	PDFPath   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Upload is one processed photo waiting to be claimed by an analysis
type Upload struct {
	ID        string    `json:"uploadId"`
	FilePath  string    `json:"-"`
	RemoteURL string    `json:"-"` // object storage mirror, when configured
	CreatedAt time.Time `json:"-"`
}

// Archived is one completed analysis persisted for auditing and retrieval
type Archived struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Plan       PlanTier  `json:"plan"`
	Verdict    Verdict   `json:"verdict"`
	ResultJSON string    `json:"result"`
	CreatedAt  time.Time `json:"created_at"`
}
