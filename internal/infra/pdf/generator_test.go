package pdf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autopruefer/autopruefer-api/internal/domain/analysis"
)

func TestGenerateWritesReport(t *testing.T) {
	g, err := New(t.TempDir())
	require.NoError(t, err)

	res := &analysis.Result{
		Verdict: analysis.VerdictRecommended,
		Summary: "Solides Fahrzeug mit Historie.",
		Risks:   []string{"Steuerkette bei hoher Laufleistung prüfen"},
		MonthlyCosts: &analysis.MonthlyCosts{
			Fuel: 150, Insurance: 100, Maintenance: 80, Tax: 22, Depreciation: 200, Total: 552,
		},
		Plan: analysis.PlanPremium,
	}
	vehicle := analysis.VehicleFacts{Brand: "BMW", Model: "320d", Year: "2018", Mileage: "89000", Price: "18500"}

	path, err := g.Generate("cs_test_abc123", vehicle, res)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(500))

	head := make([]byte, 5)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(head)
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(head))
}
