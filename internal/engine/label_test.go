package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldLabel(t *testing.T) {
	cases := map[string]string{
		"Électricité générale":  "Electricite generale",
		"  Café   du\tport  ":   "Cafe du port",
		"Fournisseur n°12":      "Fournisseur n°12",
		"ACME":                  "ACME",
		"":                      "",
	}
	for input, want := range cases {
		require.Equal(t, want, foldLabel(input), "input %q", input)
	}
}
