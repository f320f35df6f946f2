package domain

import (
	"context"
	"encoding/json"
)

// ProgramResult is the envelope every program operation returns: a success
// flag next to the payload. Errors carries the gateway's messages when
// Success is false.
type ProgramResult[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data"`
	Errors  []string `json:"errors,omitempty"`
}

// OperatorRoles reports which operator roles a wallet holds.
type OperatorRoles struct {
	Market  bool `json:"market"`
	Crank   bool `json:"crank"`
	Admin   bool `json:"admin"`
	Trading bool `json:"trading"`
}

// CreateMarketParams is the input of the create-market instruction.
type CreateMarketParams struct {
	Title     string     `json:"title"`
	Type      MarketType `json:"marketType"`
	QuoteMint string     `json:"quoteMint"`
	LockTime  int64      `json:"marketLockTimestamp"`
	EventPK   string     `json:"eventAccountPk"`
	Authority string     `json:"authority"`
}

// CreateMarketResult identifies a freshly created market.
type CreateMarketResult struct {
	MarketPK string          `json:"marketPk"`
	TxID     string          `json:"tnxId"`
	Market   json.RawMessage `json:"market,omitempty"`
}

// OutcomeInitialisation lists the outcome accounts created for a market.
type OutcomeInitialisation struct {
	Outcomes []OutcomeAccount `json:"outcomes"`
	TxID     string           `json:"tnxId"`
}

// OutcomeAccount is one outcome and its program-derived address.
type OutcomeAccount struct {
	Outcome    string `json:"outcome"`
	OutcomePDA string `json:"outcomePda"`
}

// TransactionResult carries the signature(s) of a submitted instruction.
type TransactionResult struct {
	TxIDs []string `json:"tnxIds"`
}

// MarketPosition is a wallet's exposure in a market.
type MarketPosition struct {
	PublicKey          string    `json:"publicKey"`
	Purchaser          string    `json:"purchaser"`
	OutcomeMaxExposure []float64 `json:"outcomeMaxExposure"`
	Paid               bool      `json:"paid"`
}

// ProgramClient is the external program gateway. Every submitting method
// performs exactly one on-chain submission and is not idempotent.
type ProgramClient interface {
	CheckOperatorRoles(ctx context.Context, operator string) (ProgramResult[OperatorRoles], error)
	CreateMarket(ctx context.Context, params CreateMarketParams) (ProgramResult[CreateMarketResult], error)
	InitialiseOutcomes(ctx context.Context, marketPK string, outcomes []string) (ProgramResult[OutcomeInitialisation], error)
	BatchAddPricesToAllOutcomePools(ctx context.Context, marketPK string, ladder []float64, batchSize int) (ProgramResult[TransactionResult], error)
	OpenMarket(ctx context.Context, marketPK string) (ProgramResult[TransactionResult], error)
	GetMarket(ctx context.Context, marketPK string) (ProgramResult[MarketAccount], error)
	GetPriceData(ctx context.Context, marketPK string) (ProgramResult[PriceData], error)
	GetMarketPosition(ctx context.Context, marketPK, wallet string) (ProgramResult[MarketPosition], error)
}
