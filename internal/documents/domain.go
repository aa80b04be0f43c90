package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind enumerates the journal a source document belongs to. The kind is
// carried alongside the data from the point of creation and never re-inferred
// from field shapes.
type Kind string

const (
	KindPurchase Kind = "PURCHASE"
	KindSale     Kind = "SALE"
	KindBank     Kind = "BANK"
)

// Status enumerates document posting states.
type Status string

const (
	StatusNotPosted Status = "NOT_POSTED"
	StatusPosted    Status = "POSTED"
)

var (
	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = errors.New("documents: document not found")
	// ErrTenantMismatch indicates the document belongs to another tenant.
	ErrTenantMismatch = errors.New("documents: document not owned by tenant")
	// ErrUnknownKind indicates an unrecognised journal kind.
	ErrUnknownKind = errors.New("documents: unknown document kind")
)

// ParseKind normalises a journal kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindPurchase:
		return KindPurchase, nil
	case KindSale:
		return KindSale, nil
	case KindBank:
		return KindBank, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// ParseStatus normalises a status string. Legacy rows carry the aliases
// "pending" and "validated"; they map onto the same two states.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "POSTED", "VALIDATED":
		return StatusPosted
	default:
		return StatusNotPosted
	}
}

// Movement is one raw bank statement line, independent of accounting entries.
type Movement struct {
	ID     int64
	Date   time.Time
	Label  string
	Debit  float64
	Credit float64
}

// Document is a source document of one of the three journals. Monetary
// amounts use dinar conventions: three decimals, VAT broken out by rate tier.
type Document struct {
	ID          int64
	TenantID    int64
	ClientID    int64
	Kind        Kind
	Reference   string
	Supplier    string
	Date        time.Time
	TotalHT     float64
	VAT7        float64
	VAT13       float64
	VAT19       float64
	TotalTVA    float64
	TotalTTC    float64
	Discount    float64
	FiscalStamp float64
	Status      Status
	Movements   []Movement
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ref identifies a document for posting without dragging the full row along.
type Ref struct {
	ID       int64
	TenantID int64
	Kind     Kind
	Date     time.Time
}

// Ref derives the posting reference of the document.
func (d Document) Ref() Ref {
	return Ref{ID: d.ID, TenantID: d.TenantID, Kind: d.Kind, Date: d.Date}
}
