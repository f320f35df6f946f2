package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MarketStatus is the on-chain lifecycle state of a market as exposed by the
// program account.
type MarketStatus string

const (
	MarketStatusInitializing MarketStatus = "initializing"
	MarketStatusOpen         MarketStatus = "open"
	MarketStatusLocked       MarketStatus = "locked"
	MarketStatusSettled      MarketStatus = "settled"
	MarketStatusUnknown      MarketStatus = ""
)

// MarketType selects the market template used by the program.
type MarketType string

const MarketTypeEventResultWinner MarketType = "EventResultWinner"

// MarketAccount is the program account of a market as returned by the
// fetch adapter. Account keeps every field the program reports.
type MarketAccount struct {
	PublicKey string                     `json:"publicKey" validate:"required,min=32,max=44"`
	Account   map[string]json.RawMessage `json:"account" validate:"required"`
}

// Status derives the market status from the account's marketStatus field,
// which the program encodes either as a plain string or as a single-key
// object such as {"open":{}}.
func (a MarketAccount) Status() MarketStatus {
	return statusFromAccount(a.Account)
}

func statusFromAccount(account map[string]json.RawMessage) MarketStatus {
	raw, ok := account["marketStatus"]
	if !ok {
		return MarketStatusUnknown
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return MarketStatus(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k := range obj {
			return MarketStatus(k)
		}
	}
	return MarketStatusUnknown
}

// PriceData is the derived price view of a market.
type PriceData struct {
	MarketPriceSummary    json.RawMessage `json:"marketPriceSummary"`
	MarketOutcomesSummary json.RawMessage `json:"marketOutcomesSummary"`
	LiquidityTotal        float64         `json:"liquidityTotal"`
	MatchedTotal          float64         `json:"matchedTotal"`
	TotalUnmatchedOrders  float64         `json:"totalUnmatchedOrders"`
}

// MarketPricing is the subset of a record updated after order placement.
type MarketPricing struct {
	Prices               json.RawMessage
	Outcomes             json.RawMessage
	LiquidityTotal       float64
	MatchedTotal         float64
	TotalUnmatchedOrders float64
}

// PricingFrom maps fetched price data onto the persisted pricing fields.
func PricingFrom(p PriceData) MarketPricing {
	return MarketPricing{
		Prices:               p.MarketPriceSummary,
		Outcomes:             p.MarketOutcomesSummary,
		LiquidityTotal:       p.LiquidityTotal,
		MatchedTotal:         p.MatchedTotal,
		TotalUnmatchedOrders: p.TotalUnmatchedOrders,
	}
}

// MarketMeta carries the off-chain descriptive fields of a market.
type MarketMeta struct {
	Category              string `json:"category"`
	Description           string `json:"description"`
	Tag                   string `json:"tag"`
	Ticker                string `json:"ticker"`
	ResolutionSource      string `json:"resolutionSource"`
	ResolutionValue       string `json:"resolutionValue"`
	OracleSymbol          string `json:"oracleSymbol"`
	MarketCreateTimestamp string `json:"marketCreateTimestamp"`
}

// MarketRecord is the persisted, denormalized market document: the program
// account fields flattened together with the off-chain metadata and the
// latest price summary.
type MarketRecord struct {
	ID        int64
	PublicKey string
	Account   map[string]json.RawMessage
	Status    MarketStatus
	Meta      MarketMeta
	Pricing   MarketPricing
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMarketRecord assembles a record from its parts. Status is derived from
// the account.
func NewMarketRecord(account MarketAccount, meta MarketMeta, price PriceData) MarketRecord {
	return MarketRecord{
		PublicKey: account.PublicKey,
		Account:   account.Account,
		Status:    account.Status(),
		Meta:      meta,
		Pricing:   PricingFrom(price),
	}
}

// CreateTimestampHex formats t the way market records store their creation
// time: epoch seconds as a hexadecimal string.
func CreateTimestampHex(t time.Time) string {
	return fmt.Sprintf("%x", t.Unix())
}

// reserved keys written by MarshalJSON on top of the account fields.
var recordKeys = []string{
	"_id", "publicKey", "category", "description", "tag", "ticker",
	"resolutionSource", "resolutionValue", "oracleSymbol",
	"marketCreateTimestamp", "prices", "outcomes", "liquidityTotal",
	"matchedTotal", "totalUnmatchedOrders", "createdAt", "updatedAt",
}

// MarshalJSON flattens the account fields and the record fields into a single
// object. Record fields win on key collisions.
func (m MarketRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Account)+len(recordKeys))
	for k, v := range m.Account {
		out[k] = v
	}
	if m.ID != 0 {
		out["_id"] = m.ID
	}
	out["publicKey"] = m.PublicKey
	out["category"] = m.Meta.Category
	out["description"] = m.Meta.Description
	out["tag"] = m.Meta.Tag
	out["ticker"] = m.Meta.Ticker
	out["resolutionSource"] = m.Meta.ResolutionSource
	out["resolutionValue"] = m.Meta.ResolutionValue
	out["oracleSymbol"] = m.Meta.OracleSymbol
	out["marketCreateTimestamp"] = m.Meta.MarketCreateTimestamp
	out["prices"] = rawOrNull(m.Pricing.Prices)
	out["outcomes"] = rawOrNull(m.Pricing.Outcomes)
	out["liquidityTotal"] = m.Pricing.LiquidityTotal
	out["matchedTotal"] = m.Pricing.MatchedTotal
	out["totalUnmatchedOrders"] = m.Pricing.TotalUnmatchedOrders
	if !m.CreatedAt.IsZero() {
		out["createdAt"] = m.CreatedAt
	}
	if !m.UpdatedAt.IsZero() {
		out["updatedAt"] = m.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON: known keys fill the record fields and
// everything else goes back into Account.
func (m *MarketRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var rec MarketRecord
	var decodeErr error
	take := func(key string, dst any) {
		raw, ok := fields[key]
		if !ok {
			return
		}
		delete(fields, key)
		if decodeErr == nil && string(raw) != "null" {
			if err := json.Unmarshal(raw, dst); err != nil {
				decodeErr = fmt.Errorf("market record: field %s: %w", key, err)
			}
		}
	}

	take("_id", &rec.ID)
	take("publicKey", &rec.PublicKey)
	take("category", &rec.Meta.Category)
	take("description", &rec.Meta.Description)
	take("tag", &rec.Meta.Tag)
	take("ticker", &rec.Meta.Ticker)
	take("resolutionSource", &rec.Meta.ResolutionSource)
	take("resolutionValue", &rec.Meta.ResolutionValue)
	take("oracleSymbol", &rec.Meta.OracleSymbol)
	take("marketCreateTimestamp", &rec.Meta.MarketCreateTimestamp)
	take("liquidityTotal", &rec.Pricing.LiquidityTotal)
	take("matchedTotal", &rec.Pricing.MatchedTotal)
	take("totalUnmatchedOrders", &rec.Pricing.TotalUnmatchedOrders)
	take("createdAt", &rec.CreatedAt)
	take("updatedAt", &rec.UpdatedAt)
	if raw, ok := fields["prices"]; ok {
		rec.Pricing.Prices = raw
		delete(fields, "prices")
	}
	if raw, ok := fields["outcomes"]; ok {
		rec.Pricing.Outcomes = raw
		delete(fields, "outcomes")
	}
	if decodeErr != nil {
		return decodeErr
	}

	rec.Account = fields
	rec.Status = statusFromAccount(fields)
	*m = rec
	return nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
