package engine

import (
	"fmt"
	"strings"

	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

// buildPrompt assembles the field-based generation prompt. The whole chart is
// enumerated, never truncated: account selection quality degrades sharply
// when the model has to guess codes.
func buildPrompt(doc documents.Document, chart []coa.Account) string {
	var sb strings.Builder
	sb.WriteString("Tu es un expert-comptable. Genere les ecritures comptables en partie double pour le document suivant.\n\n")
	fmt.Fprintf(&sb, "Journal: %s\n", doc.Kind)
	fmt.Fprintf(&sb, "Fournisseur: %s\n", doc.Supplier)
	fmt.Fprintf(&sb, "Reference: %s\n", doc.Reference)
	fmt.Fprintf(&sb, "Date: %s\n", doc.Date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Total HT: %.3f\n", doc.TotalHT)
	fmt.Fprintf(&sb, "TVA 7%%: %.3f\n", doc.VAT7)
	fmt.Fprintf(&sb, "TVA 13%%: %.3f\n", doc.VAT13)
	fmt.Fprintf(&sb, "TVA 19%%: %.3f\n", doc.VAT19)
	fmt.Fprintf(&sb, "Total TVA: %.3f\n", doc.TotalTVA)
	fmt.Fprintf(&sb, "Remise: %.3f\n", doc.Discount)
	fmt.Fprintf(&sb, "Timbre fiscal: %.3f\n", doc.FiscalStamp)
	fmt.Fprintf(&sb, "Total TTC: %.3f\n", doc.TotalTTC)

	if len(chart) > 0 {
		sb.WriteString("\nUtilise exclusivement les comptes du plan comptable suivant:\n")
		for _, account := range chart {
			fmt.Fprintf(&sb, "%s : %s\n", account.Code, account.Label)
		}
	}

	sb.WriteString("\nLa somme des debits doit egaler la somme des credits.\n")
	sb.WriteString("Reponds uniquement avec un objet JSON de la forme:\n")
	sb.WriteString(`{"ecritures": [{"compte": "", "libelle": "", "debit": 0, "credit": 0}]}`)
	sb.WriteString("\n")
	return sb.String()
}
