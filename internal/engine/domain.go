package engine

import (
	"errors"
	"math"
	"time"

	"github.com/comptaflow/comptaflow/internal/documents"
)

// Method tags how a set of entries was produced.
type Method string

const (
	MethodAI    Method = "ai-generated"
	MethodRules Method = "rule-based"
)

// BalanceTolerance is the absolute debit/credit difference accepted as
// balanced. One full currency unit is generous for 3-decimal amounts, but it
// is the historical behaviour and downstream reports depend on it; do not
// tighten without product confirmation.
const BalanceTolerance = 1.0

// Fixed accounts used by the rule-based templates (French chart).
const (
	AccountPurchases     = "607000"
	AccountVATDeductible = "445660"
	AccountSuppliers     = "401000"
	AccountClients       = "411000"
	AccountSales         = "707000"
	AccountVATCollected  = "445670"
	AccountBank          = "532000"
	AccountSuspense      = "471000"
)

var (
	// ErrMissingDocument indicates the document data required for generation is absent.
	ErrMissingDocument = errors.New("engine: document data required")
	// ErrMissingChart indicates the tenant chart of accounts is empty.
	ErrMissingChart = errors.New("engine: chart of accounts required")
	// ErrNoEntries indicates generation plus reconciliation produced nothing postable.
	ErrNoEntries = errors.New("engine: no postable entries produced")
	// ErrAccountNotFound indicates an account code could not be resolved at commit time.
	ErrAccountNotFound = errors.New("engine: account not found in tenant chart")
)

// ProposedEntry is one candidate leg before reconciliation and persistence.
type ProposedEntry struct {
	AccountCode string
	Label       string
	Debit       float64
	Credit      float64
	Date        time.Time
}

// Entry is one persisted leg of a double-entry posting. Exactly one of the
// three document links is set, selected by the owning document's kind.
type Entry struct {
	ID         int64
	PurchaseID *int64
	SaleID     *int64
	BankID     *int64
	AccountID  int64
	Label      string
	Debit      float64
	Credit     float64
	Date       time.Time
	CreatedAt  time.Time
}

// GenerationResult is the transient output of one generation call.
type GenerationResult struct {
	Entries    []ProposedEntry
	Method     Method
	Confidence float64
}

// Reconciliation is the outcome of validating proposed entries against the
// authoritative chart.
type Reconciliation struct {
	Accepted             []ProposedEntry
	RejectedAccountCodes []string
	TotalDebit           float64
	TotalCredit          float64
	IsBalanced           bool
}

// PostingSummary is the denormalized blob written onto sale and bank
// documents at commit time. It is a cache of the state at posting, not a
// source of truth: the single-entry-edit path does not refresh it.
type PostingSummary struct {
	EntryCount  int       `json:"entry_count"`
	TotalDebit  float64   `json:"total_debit"`
	TotalCredit float64   `json:"total_credit"`
	PostedAt    time.Time `json:"posted_at"`
}

// Options tunes one generation call.
type Options struct {
	UseAI      bool
	MaxRetries int
	Timeout    time.Duration
}

// balanced reports whether debit and credit agree within tolerance.
func balanced(debit, credit float64) bool {
	return math.Abs(debit-credit) <= BalanceTolerance
}

// linkFor builds the document link fields for an entry of the given kind.
func linkFor(ref documents.Ref) (purchaseID, saleID, bankID *int64) {
	id := ref.ID
	switch ref.Kind {
	case documents.KindPurchase:
		return &id, nil, nil
	case documents.KindSale:
		return nil, &id, nil
	case documents.KindBank:
		return nil, nil, &id
	}
	return nil, nil, nil
}
