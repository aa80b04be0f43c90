package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comptaflow/comptaflow/internal/ai"
)

const visionReply = "```json\n" + `{
	"journal": "purchase",
	"champs": {"fournisseur": "ACME", "reference": "FAC-001", "date": "2026-03-14", "total_ht": 1000, "total_tva": 190, "total_ttc": 1190},
	"ecritures": [
		{"compte": "607000", "libelle": "Achats", "debit": 1000, "credit": 0},
		{"compte": "436600", "libelle": "TVA", "debit": 190, "credit": 0},
		{"compte": "401000", "libelle": "ACME", "debit": 0, "credit": 1190}
	],
	"balance": {"total_debit": 0, "total_credit": 0, "equilibre": false}
}` + "\n```"

func TestGenerateFromImageRecomputesBalance(t *testing.T) {
	client := &fakeAI{reply: visionReply}
	g := NewGenerator(client, testLogger())

	result, err := g.GenerateFromImage(context.Background(), []byte{0xFF, 0xD8}, "image/jpeg", Options{})
	require.NoError(t, err)
	require.Equal(t, "PURCHASE", result.Journal)
	require.Equal(t, "ACME", result.Fields.Supplier)
	require.Len(t, result.Entries, 3)

	// The model claimed zero totals and an unbalanced set; both are recomputed
	// from the entries and the claim discarded.
	require.Equal(t, 1190.0, result.TotalDebit)
	require.Equal(t, 1190.0, result.TotalCredit)
	require.True(t, result.IsBalanced)

	require.Equal(t, MethodAI, result.Method)
	require.Equal(t, 0.9, result.Confidence)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), result.Entries[0].Date)
}

func TestGenerateFromImageParseFailureIsHard(t *testing.T) {
	client := &fakeAI{reply: "desole, je ne vois pas de document"}
	g := NewGenerator(client, testLogger())

	_, err := g.GenerateFromImage(context.Background(), []byte{0x01}, "image/png", Options{})
	require.Error(t, err)
	require.Equal(t, ai.KindParse, ai.KindOf(err))
}

func TestGenerateFromImageWithoutClient(t *testing.T) {
	g := NewGenerator(nil, testLogger())
	_, err := g.GenerateFromImage(context.Background(), []byte{0x01}, "", Options{})
	require.ErrorIs(t, err, ai.ErrNotConfigured)
}

func TestGenerateFromImageEmptyImage(t *testing.T) {
	g := NewGenerator(&fakeAI{reply: visionReply}, testLogger())
	_, err := g.GenerateFromImage(context.Background(), nil, "", Options{})
	require.ErrorIs(t, err, ErrMissingDocument)
}
