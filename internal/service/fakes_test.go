package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProgram records every call and fails the step named in failOn.
type fakeProgram struct {
	mu       sync.Mutex
	calls    []string
	failOn   string
	errOn    string
	rolesErr error
	noRole   bool
	position domain.MarketPosition

	// gate, when set, blocks CreateMarket until closed.
	gate chan struct{}
}

func (p *fakeProgram) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)
}

func (p *fakeProgram) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProgram) outcome(op string) (bool, error) {
	if p.errOn == op {
		return false, fmt.Errorf("%s: connection reset", op)
	}
	return p.failOn != op, nil
}

func (p *fakeProgram) CheckOperatorRoles(_ context.Context, _ string) (domain.ProgramResult[domain.OperatorRoles], error) {
	p.record("roles")
	if p.rolesErr != nil {
		return domain.ProgramResult[domain.OperatorRoles]{}, p.rolesErr
	}
	return domain.ProgramResult[domain.OperatorRoles]{Success: true, Data: domain.OperatorRoles{Market: !p.noRole}}, nil
}

func (p *fakeProgram) CreateMarket(_ context.Context, params domain.CreateMarketParams) (domain.ProgramResult[domain.CreateMarketResult], error) {
	if p.gate != nil {
		<-p.gate
	}
	p.record("create")
	ok, err := p.outcome("create")
	res := domain.ProgramResult[domain.CreateMarketResult]{Success: ok}
	if ok {
		res.Data = domain.CreateMarketResult{MarketPK: "Mkt1111111111111111111111111111111111111111", TxID: "tx-create"}
	} else {
		res.Errors = []string{"signer lacks operator role"}
	}
	return res, err
}

func (p *fakeProgram) InitialiseOutcomes(_ context.Context, _ string, outcomes []string) (domain.ProgramResult[domain.OutcomeInitialisation], error) {
	p.record("outcomes")
	ok, err := p.outcome("outcomes")
	res := domain.ProgramResult[domain.OutcomeInitialisation]{Success: ok}
	for _, o := range outcomes {
		res.Data.Outcomes = append(res.Data.Outcomes, domain.OutcomeAccount{Outcome: o})
	}
	return res, err
}

func (p *fakeProgram) BatchAddPricesToAllOutcomePools(_ context.Context, _ string, _ []float64, _ int) (domain.ProgramResult[domain.TransactionResult], error) {
	p.record("prices")
	ok, err := p.outcome("prices")
	return domain.ProgramResult[domain.TransactionResult]{Success: ok, Data: domain.TransactionResult{TxIDs: []string{"tx-p1", "tx-p2"}}}, err
}

func (p *fakeProgram) OpenMarket(_ context.Context, _ string) (domain.ProgramResult[domain.TransactionResult], error) {
	p.record("open")
	ok, err := p.outcome("open")
	return domain.ProgramResult[domain.TransactionResult]{Success: ok}, err
}

func (p *fakeProgram) GetMarket(_ context.Context, marketPK string) (domain.ProgramResult[domain.MarketAccount], error) {
	p.record("get_market")
	ok, err := p.outcome("get_market")
	return domain.ProgramResult[domain.MarketAccount]{Success: ok, Data: domain.MarketAccount{
		PublicKey: marketPK,
		Account: map[string]json.RawMessage{
			"title":        json.RawMessage(`"Will it rain?"`),
			"marketStatus": json.RawMessage(`{"open":{}}`),
		},
	}}, err
}

func (p *fakeProgram) GetPriceData(_ context.Context, _ string) (domain.ProgramResult[domain.PriceData], error) {
	p.record("price_data")
	ok, err := p.outcome("price_data")
	return domain.ProgramResult[domain.PriceData]{Success: ok, Data: domain.PriceData{
		MarketPriceSummary: json.RawMessage(`{"Yes":{}}`),
		LiquidityTotal:     12.5,
	}}, err
}

func (p *fakeProgram) GetMarketPosition(_ context.Context, marketPK, wallet string) (domain.ProgramResult[domain.MarketPosition], error) {
	p.record("position")
	ok, err := p.outcome("position")
	pos := p.position
	pos.PublicKey = marketPK
	pos.Purchaser = wallet
	return domain.ProgramResult[domain.MarketPosition]{Success: ok, Data: pos}, err
}

type fakeWallet struct {
	pk      string
	program domain.ProgramClient
	err     error
}

func (w *fakeWallet) Ready() error                  { return w.err }
func (w *fakeWallet) PublicKey() string             { return w.pk }
func (w *fakeWallet) Program() domain.ProgramClient { return w.program }

type fakeMarketStore struct {
	mu        sync.Mutex
	records   []domain.MarketRecord
	insertErr error
	pricing   map[string]domain.MarketPricing
}

func (s *fakeMarketStore) Insert(_ context.Context, rec domain.MarketRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *fakeMarketStore) UpdatePricing(_ context.Context, publicKey string, pricing domain.MarketPricing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.PublicKey == publicKey {
			if s.pricing == nil {
				s.pricing = make(map[string]domain.MarketPricing)
			}
			s.pricing[publicKey] = pricing
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *fakeMarketStore) List(_ context.Context, filter domain.MarketFilter, _ domain.MarketSort) ([]domain.MarketRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.MarketRecord{}
	for _, r := range s.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Category != "" && r.Meta.Category != filter.Category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeMarketStore) GetByPublicKey(_ context.Context, publicKey string) (domain.MarketRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.PublicKey == publicKey {
			return r, nil
		}
	}
	return domain.MarketRecord{}, domain.ErrNotFound
}

func (s *fakeMarketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeMarketCache struct {
	mu          sync.Mutex
	catalog     []domain.MarketRecord
	hasCatalog  bool
	invalidated []string
}

func (c *fakeMarketCache) SetCatalog(_ context.Context, markets []domain.MarketRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = markets
	c.hasCatalog = true
	return nil
}

func (c *fakeMarketCache) GetCatalog(_ context.Context) ([]domain.MarketRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCatalog {
		return nil, domain.ErrNotFound
	}
	return c.catalog, nil
}

func (c *fakeMarketCache) Set(context.Context, domain.MarketRecord) error { return nil }

func (c *fakeMarketCache) Get(context.Context, string) (domain.MarketRecord, error) {
	return domain.MarketRecord{}, domain.ErrNotFound
}

func (c *fakeMarketCache) Invalidate(_ context.Context, publicKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, publicKey)
	c.catalog = nil
	c.hasCatalog = false
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, errors.New("not implemented")
}

func (a *fakeAudit) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (s *fakeUserStore) UpsertOrders(_ context.Context, userPK string, orderAccounts json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.User)
	}
	s.users[userPK] = domain.User{UserPK: userPK, OrderAccounts: orderAccounts}
	return nil
}

func (s *fakeUserStore) Get(_ context.Context, userPK string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userPK]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type fakeLoanStore struct {
	loans  []domain.Loan
	totals domain.TreasuryTotals
	err    error
}

func (s *fakeLoanStore) ListByWallet(_ context.Context, wallet string) ([]domain.Loan, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Loan
	for _, l := range s.loans {
		if l.WalletAddress == wallet {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeLoanStore) Totals(context.Context) (domain.TreasuryTotals, error) {
	return s.totals, s.err
}

type fakePriceSource struct {
	mu    sync.Mutex
	price float64
	err   error
	calls int
}

func (s *fakePriceSource) TokenPrice(context.Context, string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.price, s.err
}

type fakePriceCache struct {
	price float64
	ts    time.Time
	set   bool
}

func (c *fakePriceCache) SetPrice(_ context.Context, _ string, price float64, ts time.Time) error {
	c.price, c.ts, c.set = price, ts, true
	return nil
}

func (c *fakePriceCache) GetPrice(context.Context, string) (float64, time.Time, error) {
	if !c.set {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return c.price, c.ts, nil
}
