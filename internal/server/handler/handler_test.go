package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pascal/internal/blob/s3"
	"github.com/alanyoungcy/pascal/internal/domain"
	"github.com/alanyoungcy/pascal/internal/service"
)

const (
	testMarketPK = "Mkt1111111111111111111111111111111111111111"
	testUserPK   = "Usr1111111111111111111111111111111111111111"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCatalog struct {
	configured bool
	err        error
	saved      []domain.MarketRecord
	markets    []domain.MarketRecord
	users      map[string]domain.User
	orders     int
	filter     domain.MarketFilter
}

func (c *fakeCatalog) Configured() bool { return c.configured }

func (c *fakeCatalog) SaveMarket(_ context.Context, rec domain.MarketRecord) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.saved = append(c.saved, rec)
	return int64(len(c.saved)), nil
}

func (c *fakeCatalog) ListMarkets(_ context.Context, filter domain.MarketFilter) ([]domain.MarketRecord, error) {
	c.filter = filter
	if c.err != nil {
		return []domain.MarketRecord{}, c.err
	}
	return c.markets, nil
}

func (c *fakeCatalog) GetMarket(_ context.Context, publicKey string) (domain.MarketRecord, error) {
	if c.err != nil {
		return domain.MarketRecord{}, c.err
	}
	for _, m := range c.markets {
		if m.PublicKey == publicKey {
			return m, nil
		}
	}
	return domain.MarketRecord{}, domain.ErrNotFound
}

func (c *fakeCatalog) PlaceOrder(_ context.Context, userPK, _ string, orderAccounts json.RawMessage, _ domain.PriceData) error {
	if c.err != nil {
		return c.err
	}
	c.orders++
	if c.users == nil {
		c.users = map[string]domain.User{}
	}
	c.users[userPK] = domain.User{UserPK: userPK, OrderAccounts: orderAccounts}
	return nil
}

func (c *fakeCatalog) GetUser(_ context.Context, publicKey string) (domain.User, error) {
	if c.err != nil {
		return domain.User{}, c.err
	}
	u, ok := c.users[publicKey]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func marketBody(publicKey string) string {
	return `{"marketAccount":{"publicKey":"` + publicKey + `","account":{}},"priceData":{"marketPriceSummary":{"Yes":1.5}}}`
}

func TestCreateMarketValidation(t *testing.T) {
	tests := []struct {
		name    string
		catalog *fakeCatalog
		body    string
		code    int
		msg     string
	}{
		{"bad json", &fakeCatalog{configured: true}, `{`, http.StatusBadRequest, "invalid request body"},
		{"missing account", &fakeCatalog{configured: true}, `{"category":"x"}`, http.StatusBadRequest, "Missing required marketAccount fields"},
		{"missing account body", &fakeCatalog{configured: true}, `{"marketAccount":{"publicKey":"` + testMarketPK + `"}}`, http.StatusBadRequest, "Missing required marketAccount fields"},
		{"key too short", &fakeCatalog{configured: true}, `{"marketAccount":{"publicKey":"` + strings.Repeat("a", 31) + `","account":{}}}`, http.StatusBadRequest, "Invalid publicKey format"},
		{"key too long", &fakeCatalog{configured: true}, `{"marketAccount":{"publicKey":"` + strings.Repeat("a", 45) + `","account":{}}}`, http.StatusBadRequest, "Invalid publicKey format"},
		{"missing price data", &fakeCatalog{configured: true}, `{"category":"c","marketAccount":{"publicKey":"` + testMarketPK + `","account":{"title":"x"}}}`, http.StatusBadRequest, "Missing required fields"},
		{"not configured", &fakeCatalog{}, marketBody(testMarketPK), http.StatusServiceUnavailable, "Database not configured"},
		{"duplicate", &fakeCatalog{configured: true, err: domain.ErrAlreadyExists}, marketBody(testMarketPK), http.StatusConflict, "market already exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMarketHandler(tt.catalog, nil, testLogger())
			rec := do(h.CreateMarket, http.MethodPost, "/api/createMarket", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, rec.Body.String())
			if tt.catalog.err == nil {
				assert.Empty(t, tt.catalog.saved)
			}
		})
	}
}

func TestCreateMarketBoundaryKeysAccepted(t *testing.T) {
	for _, n := range []int{32, 44} {
		catalog := &fakeCatalog{configured: true}
		h := NewMarketHandler(catalog, nil, testLogger())
		rec := do(h.CreateMarket, http.MethodPost, "/api/createMarket", marketBody(strings.Repeat("a", n)))
		assert.Equal(t, http.StatusOK, rec.Code, "length %d", n)
		assert.Len(t, catalog.saved, 1)
	}
}

func TestCreateMarketStoresRecord(t *testing.T) {
	catalog := &fakeCatalog{configured: true}
	h := NewMarketHandler(catalog, nil, testLogger())

	body := `{
		"category": "sports",
		"description": "<script>alert(1)</script>Final score",
		"marketCreateTimestamp": "65a1b2c3",
		"ticker": "WIN",
		"marketAccount": {"publicKey": "` + testMarketPK + `", "account": {"title": "Who wins?", "marketStatus": {"open": {}}}},
		"priceData": {"marketPriceSummary": {"Yes": 1.5}, "liquidityTotal": 10}
	}`
	rec := do(h.CreateMarket, http.MethodPost, "/api/createMarket", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	require.Len(t, catalog.saved, 1)
	saved := catalog.saved[0]
	assert.Equal(t, testMarketPK, saved.PublicKey)
	assert.Equal(t, domain.MarketStatusOpen, saved.Status)
	assert.Equal(t, "Final score", saved.Meta.Description)
	assert.Equal(t, "65a1b2c3", saved.Meta.MarketCreateTimestamp)
	assert.Equal(t, 10.0, saved.Pricing.LiquidityTotal)
	assert.JSONEq(t, `"Who wins?"`, string(saved.Account["title"]))
}

func TestGetMarkets(t *testing.T) {
	h := NewMarketHandler(&fakeCatalog{err: domain.ErrNotConfigured}, nil, testLogger())
	rec := do(h.GetMarkets, http.MethodGet, "/api/getMarkets", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"statusCode":503,"message":"Database not configured"}`, rec.Body.String())

	catalog := &fakeCatalog{configured: true, markets: []domain.MarketRecord{{PublicKey: testMarketPK}}}
	h = NewMarketHandler(catalog, nil, testLogger())
	rec = do(h.GetMarkets, http.MethodGet, "/api/getMarkets?category=sports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sports", catalog.filter.Category)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, testMarketPK, got[0]["publicKey"])
}

func TestGetMarketByKey(t *testing.T) {
	catalog := &fakeCatalog{configured: true, markets: []domain.MarketRecord{{PublicKey: testMarketPK}}}
	h := NewMarketHandler(catalog, nil, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{publicKey}", h.GetMarket)

	for target, code := range map[string]int{
		"/api/markets/" + testMarketPK:                             http.StatusOK,
		"/api/markets/Mkt2222222222222222222222222222222222222222": http.StatusNotFound,
		"/api/markets/short":                                       http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, code, rec.Code, target)
	}

	h = NewMarketHandler(&fakeCatalog{err: domain.ErrNotConfigured}, nil, testLogger())
	mux = http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{publicKey}", h.GetMarket)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/"+testMarketPK, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

type fakePositions struct{ err error }

func (p fakePositions) Position(_ context.Context, marketPK, walletPK string) (domain.MarketPosition, error) {
	return domain.MarketPosition{PublicKey: marketPK, Purchaser: walletPK}, p.err
}

func TestGetPosition(t *testing.T) {
	mux := func(p PositionService) *http.ServeMux {
		h := NewMarketHandler(&fakeCatalog{}, p, testLogger())
		m := http.NewServeMux()
		m.HandleFunc("GET /api/markets/{publicKey}/position", h.GetPosition)
		return m
	}
	target := "/api/markets/" + testMarketPK + "/position?wallet=" + testUserPK

	tests := []struct {
		name   string
		svc    PositionService
		target string
		code   int
	}{
		{"ok", fakePositions{}, target, http.StatusOK},
		{"bad wallet", fakePositions{}, "/api/markets/" + testMarketPK + "/position?wallet=x", http.StatusBadRequest},
		{"not ready", fakePositions{err: domain.ErrNotReady}, target, http.StatusServiceUnavailable},
		{"no service", nil, target, http.StatusServiceUnavailable},
		{"program failure", fakePositions{err: errors.New("rpc down")}, target, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux(tt.svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestPlaceOrder(t *testing.T) {
	valid := `{"publicKey":"` + testUserPK + `","marketPk":"` + testMarketPK + `","orderData":{"data":{"orderAccounts":[{"id":1}]}},"priceData":{"matchedTotal":2}}`

	tests := []struct {
		name    string
		catalog *fakeCatalog
		body    string
		code    int
	}{
		{"ok", &fakeCatalog{configured: true}, valid, http.StatusOK},
		{"missing priceData", &fakeCatalog{configured: true}, `{"publicKey":"` + testUserPK + `","marketPk":"` + testMarketPK + `","orderData":{}}`, http.StatusBadRequest},
		{"short marketPk", &fakeCatalog{configured: true}, `{"publicKey":"` + testUserPK + `","marketPk":"abc","orderData":{},"priceData":{}}`, http.StatusBadRequest},
		{"not configured", &fakeCatalog{err: domain.ErrNotConfigured}, valid, http.StatusServiceUnavailable},
		{"store failure", &fakeCatalog{err: errors.New("boom")}, valid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(tt.catalog, testLogger())
			rec := do(h.PlaceOrder, http.MethodPost, "/api/placeOrder", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
				assert.Equal(t, 1, tt.catalog.orders)
			} else {
				assert.Zero(t, tt.catalog.orders)
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	catalog := &fakeCatalog{configured: true, users: map[string]domain.User{
		testUserPK: {UserPK: testUserPK, OrderAccounts: json.RawMessage(`[]`)},
	}}
	h := NewOrderHandler(catalog, testLogger())

	rec := do(h.GetUser, http.MethodGet, "/api/user?publicKey="+testUserPK, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testUserPK)

	rec = do(h.GetUser, http.MethodGet, "/api/user?publicKey=Usr2222222222222222222222222222222222222222", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())

	rec = do(h.GetUser, http.MethodGet, "/api/user?publicKey=short", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid publicKey format"}`, rec.Body.String())

	rec = do(h.GetUser, http.MethodGet, "/api/user?publicKey=Usr11111111111111111111111111111111111111-_", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid publicKey characters"}`, rec.Body.String())

	h = NewOrderHandler(&fakeCatalog{err: domain.ErrNotConfigured}, testLogger())
	rec = do(h.GetUser, http.MethodGet, "/api/user?publicKey="+testUserPK, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", rec.Body.String())
}

type fakeLoans struct {
	loans  []domain.Loan
	err    error
	totals domain.TreasuryTotals
}

func (l *fakeLoans) Loans(context.Context, string) ([]domain.Loan, error) {
	if l.err != nil {
		return []domain.Loan{}, l.err
	}
	return l.loans, nil
}

func (l *fakeLoans) Treasury(context.Context) domain.TreasuryTotals { return l.totals }

func (l *fakeLoans) Quote(_ context.Context, tokens decimal.Decimal) (service.LoanQuote, error) {
	price := decimal.RequireFromString("0.002")
	ltv := decimal.RequireFromString("0.5")
	return service.LoanQuote{TokenAmount: tokens, TokenPrice: price, LTV: ltv, SolReceived: tokens.Mul(price).Mul(ltv)}, nil
}

type fixedPrice float64

func (p fixedPrice) Price(context.Context) float64 { return float64(p) }

func TestLoans(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		loans  *fakeLoans
		target string
		code   int
		body   string
	}{
		{"no wallet", &fakeLoans{}, "/api/loans", http.StatusBadRequest, `{"error":"Wallet address required"}`},
		{"not configured", &fakeLoans{err: domain.ErrNotConfigured}, "/api/loans?wallet=w", http.StatusServiceUnavailable, `{"error":"Database not configured","loans":[]}`},
		{"store error", &fakeLoans{err: errors.New("boom")}, "/api/loans?wallet=w", http.StatusInternalServerError, `{"error":"Database error","loans":[]}`},
		{"empty", &fakeLoans{loans: []domain.Loan{}}, "/api/loans?wallet=w", http.StatusOK, `{"loans":[]}`},
		{"rows", &fakeLoans{loans: []domain.Loan{{
			ID: "l1", WalletAddress: "w", TokenAmount: decimal.NewFromInt(1000), SolReceived: decimal.RequireFromString("1.5"),
			Status: domain.LoanStatusActive, CreatedAt: created,
		}}}, "/api/loans?wallet=w", http.StatusOK,
			`{"loans":[{"id":"l1","wallet_address":"w","token_amount":1000,"sol_received":1.5,"status":"active","created_at":"2025-01-02T03:04:05Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLendingHandler(tt.loans, fixedPrice(0.001), testLogger())
			rec := do(h.Loans, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestTreasuryStatsAndPrice(t *testing.T) {
	h := NewLendingHandler(&fakeLoans{}, fixedPrice(0.001), testLogger())
	rec := do(h.TreasuryStats, http.MethodGet, "/api/treasury-stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalTokens":0,"totalSolPaid":0,"numberOfLoans":0}`, rec.Body.String())

	rec = do(h.TokenPrice, http.MethodGet, "/api/token-price", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"price":0.001}`, rec.Body.String())

	rec = do(h.LoanQuote, http.MethodGet, "/api/loan-quote?tokens=1000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tokenAmount":1000,"tokenPrice":0.002,"ltv":0.5,"solReceived":1}`, rec.Body.String())

	rec = do(h.LoanQuote, http.MethodGet, "/api/loan-quote?tokens=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeCreation struct {
	err  error
	reqs []domain.MarketCreationRequest
	runs map[string]domain.CreationRun
}

func (c *fakeCreation) Submit(_ context.Context, req domain.MarketCreationRequest) (domain.CreationRun, error) {
	if c.err != nil {
		return domain.CreationRun{}, c.err
	}
	c.reqs = append(c.reqs, req)
	return domain.CreationRun{ID: "run-1", Status: domain.StatusCreatingMarket}, nil
}

func (c *fakeCreation) Run(id string) (domain.CreationRun, error) {
	run, ok := c.runs[id]
	if !ok {
		return domain.CreationRun{}, domain.ErrNotFound
	}
	return run, nil
}

func (c *fakeCreation) Events(context.Context, string) ([]domain.StatusEvent, error) {
	return nil, nil
}

func (c *fakeCreation) Explain(err error) string { return service.UserMessage(err) }

func creationBody(lock time.Time) string {
	body, _ := json.Marshal(map[string]any{
		"title":         "Will it <b>rain</b>?",
		"category":      "weather",
		"lockTimestamp": lock,
		"description":   "Resolves yes on rain.",
	})
	return string(body)
}

func TestCreationSubmit(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	tests := []struct {
		name string
		svc  *fakeCreation
		body string
		code int
		msg  string
	}{
		{"accepted", &fakeCreation{}, creationBody(future), http.StatusAccepted, ""},
		{"past lock", &fakeCreation{}, creationBody(time.Now().Add(-time.Hour)), http.StatusBadRequest, "Resolution date must be in the future"},
		{"missing title", &fakeCreation{}, `{"category":"x","description":"y","lockTimestamp":"` + future.Format(time.RFC3339) + `"}`, http.StatusBadRequest, "title is required"},
		{"not ready", &fakeCreation{err: domain.ErrNotReady}, creationBody(future), http.StatusServiceUnavailable, "Program not initialized. Please ensure your wallet is connected."},
		{"in flight", &fakeCreation{err: domain.ErrLockHeld}, creationBody(future), http.StatusConflict, "A market creation is already in progress for this wallet."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCreationHandler(tt.svc, testLogger())
			rec := do(h.Submit, http.MethodPost, "/api/creation", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			if tt.msg != "" {
				assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, rec.Body.String())
			}
			if tt.code == http.StatusAccepted {
				require.Len(t, tt.svc.reqs, 1)
				assert.Equal(t, "Will it rain?", tt.svc.reqs[0].Title)
				assert.JSONEq(t, `{"runId":"run-1","status":"Creating Market"}`, rec.Body.String())
			}
		})
	}
}

func TestCreationGetRun(t *testing.T) {
	svc := &fakeCreation{runs: map[string]domain.CreationRun{"run-1": {ID: "run-1", Status: domain.StatusSuccess, Done: true}}}
	h := NewCreationHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/creation/{runId}", h.GetRun)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/creation/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Success"`)
	assert.Contains(t, rec.Body.String(), `"events":[]`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/creation/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeExporter struct{ err error }

func (e fakeExporter) ExportCatalog(context.Context) (s3blob.ExportResult, error) {
	return s3blob.ExportResult{Path: "catalog/markets-20250102T030405Z.jsonl", Count: 2, Bytes: 100}, e.err
}

func TestAdminExport(t *testing.T) {
	rec := do(NewAdminHandler(nil, nil, nil, testLogger()).Export, http.MethodPost, "/api/admin/export", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(NewAdminHandler(fakeExporter{}, nil, nil, testLogger()).Export, http.MethodPost, "/api/admin/export", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"catalog/markets-20250102T030405Z.jsonl","count":2,"bytes":100}`, rec.Body.String())

	rec = do(NewAdminHandler(fakeExporter{err: errors.New("s3 down")}, nil, nil, testLogger()).Export, http.MethodPost, "/api/admin/export", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(MethodNotAllowed, http.MethodDelete, "/api/placeOrder", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method DELETE not allowed"}`, rec.Body.String())
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit?limit=900&offset=5&event=catalog.export&since=2025-01-01T00:00:00Z", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 5, opts.Offset)
	assert.Equal(t, "catalog.export", opts.Event)
	require.NotNil(t, opts.Since)
	assert.Nil(t, opts.Until)
}
