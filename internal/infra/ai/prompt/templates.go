// Package prompt holds the fixed German system prompts per plan tier. The
// report parser depends on the model honoring these numbered headings, so the
// heading lines here must stay in lockstep with the section allow-list.
package prompt

import (
	"fmt"
	"strings"

	"github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

const basePrompt = `Du bist ein erfahrener Kfz-Gutachter mit über 20 Jahren Erfahrung im deutschen Automarkt.
Du analysierst Fahrzeuge für potenzielle Käufer und gibst ehrliche, konstruktive Bewertungen.

WICHTIG: Strukturiere deine Antwort EXAKT wie folgt:

1. GESAMTBEWERTUNG: [Empfehlenswert/Mit Vorsicht zu genießen/Nicht empfehlenswert]
[Kurze Begründung in 1-2 Sätzen]

2. HAUPTRISIKEN:
- [Risiko 1]
- [Risiko 2]
- [Risiko 3]

3. VERDÄCHTIGE PUNKTE:
- [Punkt 1]
- [Punkt 2]

4. VERHANDLUNGSTIPPS:
- [Tipp 1 mit geschätzten Kosten]
- [Tipp 2 mit geschätzten Kosten]
- [Tipp 3 mit Verhandlungsspielraum]

5. WEITERE EMPFEHLUNGEN:
- [Empfehlung 1]
- [Empfehlung 2]
- [Empfehlung 3]

Antworte IMMER auf Deutsch. Sei ehrlich aber konstruktiv.`

const standardAddendum = `

STANDARD-ANALYSE: Gehe ausführlicher auf typische Schwachstellen des Modells ein,
nenne grobe Wartungskosten-Spannen und begründe die Kaufempfehlung nachvollziehbar.`

const premiumAddendum = `

PREMIUM-ANALYSE zusätzlich:

6. TECHNISCHE DETAILS:
- Motor: [Bewertung und bekannte Probleme]
- Getriebe: [Typ und Zuverlässigkeit]
- Fahrwerk: [Zustand und typische Schwachstellen]
- Elektronik: [Komplexität und Fehleranfälligkeit]

7. UNTERHALTSKOSTEN:
Monatliche Kosten in ganzen Euro:
- Kraftstoff: [€]
- Versicherung: [€]
- Wartung: [€]
- Steuer: [€]
- Wertverlust: [€]
- GESAMT: [€/Monat]

8. MARKTANALYSE:
- Aktueller Marktwert: [€]
- Preis-Leistung: [Bewertung]
- Wiederverkaufswert in 3 Jahren: [€ und %]

9. KONKURRENZMODELLE:
Erstelle eine Vergleichstabelle mit 3 direkten Konkurrenten.

Nenne außerdem Verbrauch in L/100km, Versicherung in €/Jahr, Wartung in €/Jahr
und den Restwert in % nach 3 Jahren. Gib eine SEHR detaillierte Analyse mit
mindestens 40 Prüfpunkten.`

// SystemPrompt returns the fixed template for the tier. Unknown tiers fall back
// to the basic template.
func SystemPrompt(plan analysis.PlanTier) string {
	switch plan {
	case analysis.PlanStandard:
		return basePrompt + standardAddendum
	case analysis.PlanPremium:
		return basePrompt + premiumAddendum
	default:
		return basePrompt
	}
}

// UserPrompt builds the user message from the vehicle facts plus whatever
// listing context is available.
func UserPrompt(req analysis.Request) string {
	var b strings.Builder
	b.WriteString("Analysiere dieses Fahrzeug:\n\n")

	v := req.Vehicle
	if v.Brand != "" || v.Model != "" {
		fmt.Fprintf(&b, "Marke/Modell: %s %s\n", v.Brand, v.Model)
	}
	if v.Year != "" {
		fmt.Fprintf(&b, "Baujahr: %s\n", v.Year)
	}
	if v.Mileage != "" {
		fmt.Fprintf(&b, "Kilometerstand: %s km\n", v.Mileage)
	}
	if v.Price != "" {
		fmt.Fprintf(&b, "Preis: %s €\n", v.Price)
	}
	if v.City != "" {
		fmt.Fprintf(&b, "Standort: %s\n", v.City)
	}
	if v.VIN != "" {
		fmt.Fprintf(&b, "VIN: %s\n", v.VIN)
	}
	if v.Description != "" {
		fmt.Fprintf(&b, "Beschreibung: %s\n", v.Description)
	}

	if req.ListingText != "" {
		fmt.Fprintf(&b, "\nInseratstext:\n%s\n", req.ListingText)
	}
	if len(req.PhotoURLs) > 0 {
		fmt.Fprintf(&b, "\nEs wurden %d Fotos zur Analyse bereitgestellt.\n", len(req.PhotoURLs))
	}
	if req.ListingURL != "" {
		fmt.Fprintf(&b, "Inserat-URL: %s\n", req.ListingURL)
	}

	if req.ListingText == "" && len(req.PhotoURLs) == 0 && v.Brand == "" && v.Description == "" {
		b.WriteString("Keine spezifischen Daten verfügbar. Gib allgemeine Hinweise zur Fahrzeugprüfung.")
	}

	return b.String()
}

// MaxTokens scales the completion budget by tier.
func MaxTokens(plan analysis.PlanTier) int {
	switch plan {
	case analysis.PlanPremium:
		return 4000
	case analysis.PlanStandard:
		return 2000
	default:
		return 1000
	}
}

// Temperature is fixed for all tiers.
const Temperature float32 = 0.7

// FallbackReport is the canned result stored when the model call fails, so a
// paying customer always gets something. It follows the template skeleton and
// therefore parses into a caution verdict.
func FallbackReport() string {
	return `1. GESAMTBEWERTUNG: Mit Vorsicht zu genießen
Die automatische Analyse konnte nicht abgeschlossen werden. Die folgenden Punkte gelten für jeden Gebrauchtwagenkauf.

2. HAUPTRISIKEN:
- Unfallschäden und nachlackierte Karosserieteile sind auf Fotos schwer erkennbar
- Kilometerstand ohne Serviceheft nicht verifizierbar

3. VERDÄCHTIGE PUNKTE:
- Auffällig niedriger Preis im Vergleich zum Marktwert sollte hinterfragt werden

4. VERHANDLUNGSTIPPS:
- Mängelliste bei der Besichtigung erstellen und Kosten beziffern
- Wartungsstau als Verhandlungsargument nutzen

5. WEITERE EMPFEHLUNGEN:
- Fahrzeug vor dem Kauf von einer unabhängigen Werkstatt prüfen lassen
- Probefahrt mit kaltem Motor beginnen und auf Geräusche achten
- Bitte kontaktieren Sie den Support für eine manuelle Auswertung`
}
