package engine

import "github.com/comptaflow/comptaflow/internal/coa"

// Reconcile cross-checks proposed entries against the authoritative chart.
// Entries whose account code has no exact match are dropped and reported;
// they never reach persistence and never abort the operation. Totals cover
// accepted entries only.
func Reconcile(proposed []ProposedEntry, chart []coa.Account) Reconciliation {
	byCode := make(map[string]coa.Account, len(chart))
	for _, account := range chart {
		byCode[account.Code] = account
	}

	rec := Reconciliation{}
	for _, entry := range proposed {
		account, ok := byCode[entry.AccountCode]
		if !ok {
			rec.RejectedAccountCodes = append(rec.RejectedAccountCodes, entry.AccountCode)
			continue
		}
		if entry.Label == "" {
			entry.Label = account.Label
		}
		rec.Accepted = append(rec.Accepted, entry)
		rec.TotalDebit += entry.Debit
		rec.TotalCredit += entry.Credit
	}
	rec.IsBalanced = balanced(rec.TotalDebit, rec.TotalCredit)
	return rec
}
