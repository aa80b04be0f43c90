package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPromptEnumeratesChart(t *testing.T) {
	prompt := buildPrompt(purchaseDoc(), testChart())
	require.Contains(t, prompt, "Journal: PURCHASE")
	require.Contains(t, prompt, "Fournisseur: ACME")
	require.Contains(t, prompt, "Total TTC: 1190.000")
	for _, account := range testChart() {
		require.Contains(t, prompt, account.Code+" : "+account.Label)
	}
	require.Contains(t, prompt, `{"ecritures":`)
}

func TestBuildPromptWithoutChartOmitsSection(t *testing.T) {
	prompt := buildPrompt(purchaseDoc(), nil)
	require.False(t, strings.Contains(prompt, "plan comptable"))
}
