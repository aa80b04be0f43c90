package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/comptaflow/comptaflow/internal/ai"
	"github.com/comptaflow/comptaflow/internal/coa"
	"github.com/comptaflow/comptaflow/internal/documents"
)

const (
	defaultAITimeout = 30 * time.Second
	aiConfidence     = 0.9
	retryBackoff     = 500 * time.Millisecond
)

// Generator produces candidate entries for a document. The AI strategy is
// tried first when enabled and configured; the rule-based strategy is the
// always-available deterministic fallback.
type Generator struct {
	client ai.Client
	logger *slog.Logger
}

// NewGenerator constructs a Generator. A nil client disables the AI path.
func NewGenerator(client ai.Client, logger *slog.Logger) *Generator {
	return &Generator{client: client, logger: logger}
}

// Generate returns a set of proposed entries for the document. AI failures
// are logged and degrade to the rule-based strategy; they are never surfaced
// to the caller on their own.
func (g *Generator) Generate(ctx context.Context, doc documents.Document, chart []coa.Account, opts Options) (GenerationResult, error) {
	if doc.ID == 0 || doc.Kind == "" {
		return GenerationResult{}, ErrMissingDocument
	}
	if opts.UseAI && g.client != nil {
		result, err := g.generateAI(ctx, doc, chart, opts)
		if err == nil {
			return result, nil
		}
		if g.logger != nil {
			g.logger.Warn("ai generation failed, falling back to rules",
				slog.Int64("document_id", doc.ID),
				slog.String("kind", string(doc.Kind)),
				slog.String("ai_kind", string(ai.KindOf(err))),
				slog.Any("error", err))
		}
	}
	return g.GenerateRules(doc)
}

func (g *Generator) generateAI(ctx context.Context, doc documents.Document, chart []coa.Account, opts Options) (GenerationResult, error) {
	prompt := buildPrompt(doc, chart)
	attempts := opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return GenerationResult{}, ai.NewError(ai.KindTimeout, "generate", ctx.Err())
			case <-time.After(retryBackoff):
			}
		}
		raw, err := g.completeWithTimeout(ctx, prompt, opts.Timeout)
		if err != nil {
			lastErr = err
			continue
		}
		entries, err := parseProposedEntries(raw)
		if err != nil {
			lastErr = err
			continue
		}
		return GenerationResult{Entries: entries, Method: MethodAI, Confidence: aiConfidence}, nil
	}
	return GenerationResult{}, lastErr
}

// completeWithTimeout races the completion call against a timer. A response
// that loses the race is drained into the buffered channel and discarded; it
// can never mutate state after the call returns.
func (g *Generator) completeWithTimeout(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type completion struct {
		text string
		err  error
	}
	ch := make(chan completion, 1)
	go func() {
		text, err := g.client.Complete(ctx, prompt)
		ch <- completion{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ai.NewError(ai.KindTimeout, "complete", ctx.Err())
	case res := <-ch:
		return res.text, res.err
	}
}

type aiEntry struct {
	Compte  string  `json:"compte"`
	Libelle string  `json:"libelle"`
	Debit   float64 `json:"debit"`
	Credit  float64 `json:"credit"`
}

type aiEnvelope struct {
	Ecritures []aiEntry `json:"ecritures"`
}

func parseProposedEntries(raw string) ([]ProposedEntry, error) {
	object, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, ai.NewError(ai.KindParse, "parse_entries", err)
	}
	var envelope aiEnvelope
	if err := json.Unmarshal(object, &envelope); err != nil {
		return nil, ai.NewError(ai.KindParse, "parse_entries", err)
	}
	if len(envelope.Ecritures) == 0 {
		return nil, ai.NewError(ai.KindParse, "parse_entries", fmt.Errorf("missing ecritures array"))
	}
	entries := make([]ProposedEntry, 0, len(envelope.Ecritures))
	for _, e := range envelope.Ecritures {
		entries = append(entries, ProposedEntry{
			AccountCode: e.Compte,
			Label:       foldLabel(e.Libelle),
			Debit:       e.Debit,
			Credit:      e.Credit,
		})
	}
	return entries, nil
}

// GenerateRules applies the deterministic journal templates. No I/O, no
// randomness: identical input always yields identical output.
func (g *Generator) GenerateRules(doc documents.Document) (GenerationResult, error) {
	if doc.ID == 0 || doc.Kind == "" {
		return GenerationResult{}, ErrMissingDocument
	}
	var entries []ProposedEntry
	supplier := foldLabel(doc.Supplier)
	switch doc.Kind {
	case documents.KindPurchase:
		entries = append(entries, ProposedEntry{AccountCode: AccountPurchases, Label: supplier, Debit: doc.TotalHT})
		if doc.TotalTVA > 0 {
			entries = append(entries, ProposedEntry{AccountCode: AccountVATDeductible, Debit: doc.TotalTVA})
		}
		entries = append(entries, ProposedEntry{AccountCode: AccountSuppliers, Label: supplier, Credit: doc.TotalTTC})
	case documents.KindSale:
		entries = append(entries, ProposedEntry{AccountCode: AccountClients, Label: supplier, Debit: doc.TotalTTC})
		entries = append(entries, ProposedEntry{AccountCode: AccountSales, Label: supplier, Credit: doc.TotalHT})
		if doc.TotalTVA > 0 {
			entries = append(entries, ProposedEntry{AccountCode: AccountVATCollected, Credit: doc.TotalTVA})
		}
	case documents.KindBank:
		for _, movement := range doc.Movements {
			label := foldLabel(movement.Label)
			// A statement debit is money leaving the bank account.
			if movement.Debit > 0 {
				entries = append(entries,
					ProposedEntry{AccountCode: AccountSuspense, Label: label, Debit: movement.Debit, Date: movement.Date},
					ProposedEntry{AccountCode: AccountBank, Label: label, Credit: movement.Debit, Date: movement.Date})
			}
			if movement.Credit > 0 {
				entries = append(entries,
					ProposedEntry{AccountCode: AccountBank, Label: label, Debit: movement.Credit, Date: movement.Date},
					ProposedEntry{AccountCode: AccountSuspense, Label: label, Credit: movement.Credit, Date: movement.Date})
			}
		}
	default:
		return GenerationResult{}, documents.ErrUnknownKind
	}
	return GenerationResult{Entries: entries, Method: MethodRules, Confidence: 1.0}, nil
}
