package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Event  string
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketFilter narrows a catalog listing. Zero values match everything.
type MarketFilter struct {
	Status   MarketStatus
	Category string
}

// MarketSort selects the catalog ordering.
type MarketSort int

const (
	// SortByStatus orders open markets first, then locked, then settled,
	// newest first within each status.
	SortByStatus MarketSort = iota
	SortByNewest
)

// MarketStore persists market records in the document store.
type MarketStore interface {
	Insert(ctx context.Context, rec MarketRecord) (int64, error)
	UpdatePricing(ctx context.Context, publicKey string, pricing MarketPricing) error
	List(ctx context.Context, filter MarketFilter, sort MarketSort) ([]MarketRecord, error)
	GetByPublicKey(ctx context.Context, publicKey string) (MarketRecord, error)
}

// UserStore persists per-wallet order documents.
type UserStore interface {
	UpsertOrders(ctx context.Context, userPK string, orderAccounts json.RawMessage) error
	Get(ctx context.Context, userPK string) (User, error)
}

// LoanStore reads loan rows from the row store.
type LoanStore interface {
	ListByWallet(ctx context.Context, wallet string) ([]Loan, error)
	Totals(ctx context.Context) (TreasuryTotals, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
