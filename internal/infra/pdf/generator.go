// Package pdf renders the premium report as an A4 document.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

type Generator struct {
	dir string
}

func New(dir string) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &Generator{dir: dir}, nil
}

var verdictLabels = map[analysis.Verdict]string{
	analysis.VerdictRecommended:    "Empfehlenswert",
	analysis.VerdictCaution:        "Mit Vorsicht zu genießen",
	analysis.VerdictNotRecommended: "Nicht empfehlenswert",
}

// Generate writes the report for one session and returns the file path.
func (g *Generator) Generate(sessionID string, vehicle analysis.VehicleFacts, res *analysis.Result) (string, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetMargins(18, 18, 18)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 22)
	doc.SetTextColor(30, 64, 175)
	doc.CellFormat(0, 10, tr("Autoprüfer"), "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 14)
	doc.SetTextColor(0, 0, 0)
	doc.CellFormat(0, 8, "Fahrzeuganalyse Premium", "", 1, "C", false, 0, "")
	doc.Ln(4)

	g.heading(doc, tr, "Fahrzeugdaten")
	doc.SetFont("Helvetica", "", 10)
	facts := []string{
		fmt.Sprintf("Fahrzeug: %s %s", vehicle.Brand, vehicle.Model),
		fmt.Sprintf("Baujahr: %s", vehicle.Year),
		fmt.Sprintf("Kilometerstand: %s km", vehicle.Mileage),
		fmt.Sprintf("Preis: %s €", vehicle.Price),
	}
	if vehicle.City != "" {
		facts = append(facts, fmt.Sprintf("Standort: %s", vehicle.City))
	}
	if vehicle.VIN != "" {
		facts = append(facts, fmt.Sprintf("VIN: %s", vehicle.VIN))
	}
	for _, f := range facts {
		doc.CellFormat(0, 5, tr(f), "", 1, "L", false, 0, "")
	}
	doc.Ln(4)

	g.heading(doc, tr, fmt.Sprintf("Gesamtbewertung: %s", verdictLabels[res.Verdict]))
	doc.SetFont("Helvetica", "", 10)
	doc.MultiCell(0, 5, tr(res.Summary), "", "L", false)
	doc.Ln(2)

	g.list(doc, tr, "Hauptrisiken", res.Risks)
	g.list(doc, tr, "Verdächtige Punkte", res.SuspiciousPoints)
	g.list(doc, tr, "Verhandlungstipps", res.Negotiation)
	g.list(doc, tr, "Weitere Empfehlungen", res.Recommendations)
	g.list(doc, tr, "Technische Details", res.TechnicalDetails)
	g.list(doc, tr, "Marktanalyse", res.MarketAnalysis)

	if res.MonthlyCosts != nil {
		g.heading(doc, tr, "Unterhaltskosten (monatlich)")
		doc.SetFont("Helvetica", "", 10)
		rows := []struct {
			label string
			value int
		}{
			{"Kraftstoff", res.MonthlyCosts.Fuel},
			{"Versicherung", res.MonthlyCosts.Insurance},
			{"Wartung", res.MonthlyCosts.Maintenance},
			{"Steuer", res.MonthlyCosts.Tax},
			{"Wertverlust", res.MonthlyCosts.Depreciation},
			{"GESAMT", res.MonthlyCosts.Total},
		}
		for _, row := range rows {
			doc.CellFormat(0, 5, tr(fmt.Sprintf("%s: %d €", row.label, row.value)), "", 1, "L", false, 0, "")
		}
		doc.Ln(2)
	}

	doc.SetY(-24)
	doc.SetFont("Helvetica", "", 8)
	doc.SetTextColor(102, 102, 102)
	doc.CellFormat(0, 4, tr(fmt.Sprintf("Erstellt am: %s", time.Now().Format("02.01.2006"))), "", 1, "L", false, 0, "")
	doc.CellFormat(0, 4, tr("© Autoprüfer, KI-gestützte Fahrzeuganalyse"), "", 1, "C", false, 0, "")

	path := filepath.Join(g.dir, fmt.Sprintf("analyse-%s.pdf", sessionID))
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

func (g *Generator) heading(doc *fpdf.Fpdf, tr func(string) string, title string) {
	doc.SetFont("Helvetica", "B", 13)
	doc.SetTextColor(30, 64, 175)
	doc.CellFormat(0, 7, tr(title), "", 1, "L", false, 0, "")
	doc.SetTextColor(0, 0, 0)
}

func (g *Generator) list(doc *fpdf.Fpdf, tr func(string) string, title string, items []string) {
	if len(items) == 0 {
		return
	}
	g.heading(doc, tr, title)
	doc.SetFont("Helvetica", "", 10)
	for _, it := range items {
		doc.MultiCell(0, 5, tr("- "+it), "", "L", false)
	}
	doc.Ln(2)
}
