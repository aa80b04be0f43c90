package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/comptaflow/comptaflow/internal/ai"
)

// Tunisian chart codes used by the image-native localized flow. This flow
// predates per-tenant charts and posts against fixed national numbering.
var tunisianChart = []struct {
	Code  string
	Label string
}{
	{"607000", "Achats de marchandises"},
	{"436600", "TVA deductible"},
	{"401000", "Fournisseurs d'exploitation"},
	{"411000", "Clients"},
	{"707000", "Ventes de marchandises"},
	{"437600", "TVA collectee"},
	{"532000", "Banque"},
	{"661000", "Charges financieres"},
	{"471000", "Comptes d'attente"},
}

// VisionFields are the document fields extracted in the same model call that
// produces the entries.
type VisionFields struct {
	Supplier  string  `json:"fournisseur"`
	Reference string  `json:"reference"`
	Date      string  `json:"date"`
	TotalHT   float64 `json:"total_ht"`
	TotalTVA  float64 `json:"total_tva"`
	TotalTTC  float64 `json:"total_ttc"`
}

// VisionResult is the outcome of the image-native localized flow.
type VisionResult struct {
	Journal     string
	Fields      VisionFields
	Entries     []ProposedEntry
	TotalDebit  float64
	TotalCredit float64
	IsBalanced  bool
	Method      Method
	Confidence  float64
}

type visionEnvelope struct {
	Journal   string       `json:"journal"`
	Fields    VisionFields `json:"champs"`
	Ecritures []aiEntry    `json:"ecritures"`
	Balance   struct {
		TotalDebit  float64 `json:"total_debit"`
		TotalCredit float64 `json:"total_credit"`
		Equilibre   bool    `json:"equilibre"`
	} `json:"balance"`
}

// GenerateFromImage sends the raw document image to the model, asking for
// journal classification, field extraction, and entries on the Tunisian chart
// in one call. There is no rule fallback on this path: an unusable response
// is a hard failure. The model's self-reported balance summary is recomputed
// from the returned entries and overwritten, never trusted.
func (g *Generator) GenerateFromImage(ctx context.Context, image []byte, mimeType string, opts Options) (VisionResult, error) {
	if len(image) == 0 {
		return VisionResult{}, ErrMissingDocument
	}
	if g.client == nil {
		return VisionResult{}, ai.ErrNotConfigured
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := g.client.CompleteWithImage(ctx, buildVisionPrompt(), image, mimeType)
	if err != nil {
		return VisionResult{}, err
	}

	object, err := ExtractJSONObject(raw)
	if err != nil {
		return VisionResult{}, ai.NewError(ai.KindParse, "vision", err)
	}
	var envelope visionEnvelope
	if err := json.Unmarshal(object, &envelope); err != nil {
		return VisionResult{}, ai.NewError(ai.KindParse, "vision", err)
	}

	result := VisionResult{
		Journal:    strings.ToUpper(strings.TrimSpace(envelope.Journal)),
		Fields:     envelope.Fields,
		Method:     MethodAI,
		Confidence: aiConfidence,
	}
	for _, e := range envelope.Ecritures {
		entry := ProposedEntry{
			AccountCode: e.Compte,
			Label:       foldLabel(e.Libelle),
			Debit:       e.Debit,
			Credit:      e.Credit,
		}
		if parsed, parseErr := time.Parse("2006-01-02", envelope.Fields.Date); parseErr == nil {
			entry.Date = parsed
		}
		result.Entries = append(result.Entries, entry)
		result.TotalDebit += entry.Debit
		result.TotalCredit += entry.Credit
	}
	result.IsBalanced = balanced(result.TotalDebit, result.TotalCredit)
	return result, nil
}

func buildVisionPrompt() string {
	var sb strings.Builder
	sb.WriteString("Tu es un expert-comptable tunisien. Analyse l'image du document fournie.\n")
	sb.WriteString("1. Classifie le journal: PURCHASE, SALE, BANK ou OTHER.\n")
	sb.WriteString("2. Extrais fournisseur, reference, date (aaaa-mm-jj), total_ht, total_tva, total_ttc.\n")
	sb.WriteString("3. Genere les ecritures en partie double avec uniquement ces comptes:\n")
	for _, account := range tunisianChart {
		sb.WriteString(account.Code)
		sb.WriteString(" : ")
		sb.WriteString(account.Label)
		sb.WriteString("\n")
	}
	sb.WriteString("Reponds uniquement avec un objet JSON de la forme:\n")
	sb.WriteString(`{"journal": "", "champs": {"fournisseur": "", "reference": "", "date": "", "total_ht": 0, "total_tva": 0, "total_ttc": 0}, "ecritures": [{"compte": "", "libelle": "", "debit": 0, "credit": 0}], "balance": {"total_debit": 0, "total_credit": 0, "equilibre": true}}`)
	sb.WriteString("\n")
	return sb.String()
}
