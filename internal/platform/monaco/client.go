// Package monaco is the JSON-RPC client for the prediction-market program
// gateway. The gateway builds, signs and submits program instructions; this
// client names the operator making each call and returns the gateway's
// {success, data, errors} envelope unchanged.
package monaco

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// Header names carried on every call.
const (
	HeaderOperatorKey       = "X-Operator-Key"
	HeaderOperatorTimestamp = "X-Operator-Timestamp"
	HeaderOperatorSignature = "X-Operator-Signature"
	HeaderProgramID         = "X-Program-Id"
)

// methodPrefix namespaces every gateway method.
const methodPrefix = "monaco_"

// Signer is the operator identity calls are attributed to.
type Signer interface {
	PublicKey() string
	Sign(msg []byte) []byte
}

// Config holds the gateway connection parameters.
type Config struct {
	URL       string
	ProgramID string
	// CallTimeout bounds each call. Zero leaves only the caller's deadline.
	CallTimeout time.Duration
	HTTPClient  *http.Client
}

// Client implements domain.ProgramClient over go-ethereum's JSON-RPC client.
type Client struct {
	rpc     *rpc.Client
	signer  Signer
	program string
	timeout time.Duration
	now     func() time.Time
}

// Dial connects to the gateway at cfg.URL. HTTP(S) and WS(S) URLs are both
// accepted.
func Dial(ctx context.Context, cfg Config, signer Signer) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("monaco: %w", domain.ErrNotConfigured)
	}
	if signer == nil {
		return nil, fmt.Errorf("monaco: signer required: %w", domain.ErrNotReady)
	}

	var opts []rpc.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, rpc.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.ProgramID != "" {
		opts = append(opts, rpc.WithHeader(HeaderProgramID, cfg.ProgramID))
	}

	c, err := rpc.DialOptions(ctx, cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("monaco: dial %s: %w", cfg.URL, err)
	}
	return &Client{
		rpc:     c,
		signer:  signer,
		program: cfg.ProgramID,
		timeout: cfg.CallTimeout,
		now:     time.Now,
	}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	c.rpc.Close()
	return nil
}

// SignaturePayload is the message signed for a call: "<method>:<unix ts>".
func SignaturePayload(method string, ts int64) []byte {
	return []byte(method + ":" + strconv.FormatInt(ts, 10))
}

// call invokes method and decodes the envelope into a ProgramResult[T]. A
// transport or JSON-RPC error is returned as err; a gateway-level failure
// comes back as Success=false with a nil error.
func call[T any](ctx context.Context, c *Client, method string, params any) (domain.ProgramResult[T], error) {
	full := methodPrefix + method

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ts := c.now().Unix()
	h := http.Header{}
	h.Set(HeaderOperatorKey, c.signer.PublicKey())
	h.Set(HeaderOperatorTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderOperatorSignature, base58.Encode(c.signer.Sign(SignaturePayload(full, ts))))
	ctx = rpc.NewContextWithHeaders(ctx, h)

	var res domain.ProgramResult[T]
	if err := c.rpc.CallContext(ctx, &res, full, params); err != nil {
		return domain.ProgramResult[T]{}, fmt.Errorf("monaco: %s: %w", method, err)
	}
	return res, nil
}

type marketParams struct {
	MarketPK string `json:"marketPk"`
}

// CheckOperatorRoles reports the roles held by operator.
func (c *Client) CheckOperatorRoles(ctx context.Context, operator string) (domain.ProgramResult[domain.OperatorRoles], error) {
	return call[domain.OperatorRoles](ctx, c, "checkOperatorRoles", struct {
		Operator string `json:"operatorPk"`
	}{operator})
}

// CreateMarket submits the create-market instruction.
func (c *Client) CreateMarket(ctx context.Context, params domain.CreateMarketParams) (domain.ProgramResult[domain.CreateMarketResult], error) {
	return call[domain.CreateMarketResult](ctx, c, "createMarket", params)
}

// InitialiseOutcomes creates one outcome account per name.
func (c *Client) InitialiseOutcomes(ctx context.Context, marketPK string, outcomes []string) (domain.ProgramResult[domain.OutcomeInitialisation], error) {
	return call[domain.OutcomeInitialisation](ctx, c, "initialiseOutcomes", struct {
		MarketPK string   `json:"marketPk"`
		Outcomes []string `json:"outcomes"`
	}{marketPK, outcomes})
}

// BatchAddPricesToAllOutcomePools adds every ladder price to every outcome
// pool, batchSize prices per transaction.
func (c *Client) BatchAddPricesToAllOutcomePools(ctx context.Context, marketPK string, ladder []float64, batchSize int) (domain.ProgramResult[domain.TransactionResult], error) {
	return call[domain.TransactionResult](ctx, c, "batchAddPricesToAllOutcomePools", struct {
		MarketPK    string    `json:"marketPk"`
		PriceLadder []float64 `json:"priceLadder"`
		BatchSize   int       `json:"batchSize"`
	}{marketPK, ladder, batchSize})
}

// OpenMarket moves the market from initializing to open.
func (c *Client) OpenMarket(ctx context.Context, marketPK string) (domain.ProgramResult[domain.TransactionResult], error) {
	return call[domain.TransactionResult](ctx, c, "openMarket", marketParams{marketPK})
}

// GetMarket fetches the market account.
func (c *Client) GetMarket(ctx context.Context, marketPK string) (domain.ProgramResult[domain.MarketAccount], error) {
	return call[domain.MarketAccount](ctx, c, "getMarket", marketParams{marketPK})
}

// GetPriceData fetches the derived price view of the market.
func (c *Client) GetPriceData(ctx context.Context, marketPK string) (domain.ProgramResult[domain.PriceData], error) {
	return call[domain.PriceData](ctx, c, "getPriceData", marketParams{marketPK})
}

// GetMarketPosition fetches wallet's position in the market.
func (c *Client) GetMarketPosition(ctx context.Context, marketPK, wallet string) (domain.ProgramResult[domain.MarketPosition], error) {
	return call[domain.MarketPosition](ctx, c, "getMarketPosition", struct {
		MarketPK string `json:"marketPk"`
		Wallet   string `json:"walletPk"`
	}{marketPK, wallet})
}

var _ domain.ProgramClient = (*Client)(nil)
