package analysis

import (
	"regexp"
	"strconv"
	"strings"
)

// Section headings the prompt templates instruct the model to emit. Matching is
// case-sensitive; anything outside this list is ignored.
const (
	SectionVerdict     = "GESAMTBEWERTUNG"
	SectionRisks       = "HAUPTRISIKEN"
	SectionSuspicious  = "VERDÄCHTIGE PUNKTE"
	SectionNegotiation = "VERHANDLUNGSTIPPS"
	SectionAdvice      = "WEITERE EMPFEHLUNGEN"
	SectionTechnical   = "TECHNISCHE DETAILS"
	SectionCosts       = "UNTERHALTSKOSTEN"
	SectionMarket      = "MARKTANALYSE"
)

var allowedSections = map[string]bool{
	SectionVerdict:     true,
	SectionRisks:       true,
	SectionSuspicious:  true,
	SectionNegotiation: true,
	SectionAdvice:      true,
	SectionTechnical:   true,
	SectionCosts:       true,
	SectionMarket:      true,
}

const (
	markerRecommended    = "Empfehlenswert"
	markerNotRecommended = "Nicht empfehlenswert"

	// minimum rune length of a list item after bullet stripping;
	// anything shorter is stray punctuation, not content
	minItemLen = 10
)

// rxHeading matches "N. UPPERCASE HEADING:". Bodies are sliced between
// consecutive heading matches, so a line that belongs to the next numbered
// section can never leak into the previous one.
var (
	rxHeading = regexp.MustCompile(`(\d+)\.\s*([A-ZÄÖÜ][A-ZÄÖÜ ]*[A-ZÄÖÜ]):`)
	rxBullet  = regexp.MustCompile(`^[-•*]\s*`)
	rxBracket = regexp.MustCompile(`\[.*?\]`)
	rxEnum    = regexp.MustCompile(`\d+\.\s*`)

	costPatterns = map[string]*regexp.Regexp{
		"fuel":         regexp.MustCompile(`Kraftstoff:\s*(\d+)`),
		"insurance":    regexp.MustCompile(`Versicherung:\s*(\d+)`),
		"maintenance":  regexp.MustCompile(`Wartung:\s*(\d+)`),
		"tax":          regexp.MustCompile(`Steuer:\s*(\d+)`),
		"depreciation": regexp.MustCompile(`Wertverlust:\s*(\d+)`),
		"total":        regexp.MustCompile(`GESAMT:\s*(\d+)`),
	}

	rxFuelConsumption = regexp.MustCompile(`(\d+[.,]\d+)\s*L/100km`)
	rxAnnualInsurance = regexp.MustCompile(`Versicherung:?\s*(\d+)\s*€/Jahr`)
	rxAnnualUpkeep    = regexp.MustCompile(`Wartung:?\s*(\d+)\s*€/Jahr`)
	rxResale          = regexp.MustCompile(`(\d+)\s*%\s*(?:Restwert|nach 3 Jahren)`)
)

// ParseReport turns one free-text completion into a structured Result. It never
// fails: sections that are missing or malformed yield empty fields, and an
// empty input yields an all-empty result with verdict "caution".
func ParseReport(text string, plan PlanTier) Result {
	sections := ExtractSections(text)
	verdictBody := sections[SectionVerdict]

	res := Result{
		Verdict:          classifyVerdict(verdictBody),
		Summary:          cleanSummary(verdictBody),
		Risks:            extractListItems(sections[SectionRisks]),
		SuspiciousPoints: extractListItems(sections[SectionSuspicious]),
		Negotiation:      extractListItems(sections[SectionNegotiation]),
		Recommendations:  extractListItems(sections[SectionAdvice]),
		Plan:             plan,
		RawText:          text,
	}

	if plan == PlanPremium {
		res.TechnicalDetails = extractListItems(sections[SectionTechnical])
		res.MonthlyCosts = extractCosts(sections[SectionCosts])
		res.MarketAnalysis = extractListItems(sections[SectionMarket])
		res.Stats = extractStats(text)
	}

	return res
}

// ExtractSections segments the text into heading-delimited bodies. Each body
// runs to the start of the next numbered uppercase heading or to end of text.
func ExtractSections(text string) map[string]string {
	sections := make(map[string]string)
	locs := rxHeading.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		name := text[loc[4]:loc[5]]
		if !allowedSections[name] {
			continue
		}
		bodyStart := loc[1]
		bodyEnd := len(text)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(text[bodyStart:bodyEnd])
	}
	return sections
}

// classifyVerdict scans the verdict section body for marker phrases. The
// negative marker always wins over the positive one; neither means caution.
func classifyVerdict(body string) Verdict {
	if strings.Contains(body, markerNotRecommended) {
		return VerdictNotRecommended
	}
	if strings.Contains(body, markerRecommended) {
		return VerdictRecommended
	}
	return VerdictCaution
}

func cleanSummary(body string) string {
	s := rxBracket.ReplaceAllString(body, "")
	s = rxEnum.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func extractListItems(body string) []string {
	items := []string{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(rxBullet.ReplaceAllString(line, ""))
		if len([]rune(line)) < minItemLen {
			continue
		}
		items = append(items, line)
	}
	return items
}

func extractCosts(body string) *MonthlyCosts {
	if body == "" {
		return nil
	}
	costs := &MonthlyCosts{}
	for key, rx := range costPatterns {
		m := rx.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch key {
		case "fuel":
			costs.Fuel = n
		case "insurance":
			costs.Insurance = n
		case "maintenance":
			costs.Maintenance = n
		case "tax":
			costs.Tax = n
		case "depreciation":
			costs.Depreciation = n
		case "total":
			costs.Total = n
		}
	}
	return costs
}

// extractStats pulls free-floating figures from the whole raw text, not from a
// single section, falling back to typical values when a pattern is absent.
func extractStats(text string) *KeyStats {
	return &KeyStats{
		FuelConsumption:   extractNumber(text, rxFuelConsumption, 5.5),
		AnnualInsurance:   extractNumber(text, rxAnnualInsurance, 1200),
		AnnualMaintenance: extractNumber(text, rxAnnualUpkeep, 1500),
		ResalePercentage:  extractNumber(text, rxResale, 64),
	}
}

func extractNumber(text string, rx *regexp.Regexp, fallback float64) float64 {
	m := rx.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return fallback
	}
	return f
}
