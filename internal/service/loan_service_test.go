package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pascal/internal/domain"
)

const lendMint = "CB9dDufT3ZuQXqqSfa1c5kY935TEreyBw9XJXxHKpump"

func TestTokenPriceFallback(t *testing.T) {
	tests := []struct {
		name   string
		source *fakePriceSource
		want   float64
	}{
		{"live price", &fakePriceSource{price: 0.0042}, 0.0042},
		{"source error", &fakePriceSource{err: errors.New("timeout")}, 0.001},
		{"zero price", &fakePriceSource{price: 0}, 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewTokenPriceService(tt.source, nil, lendMint, 0.001, time.Minute, testLogger())
			assert.Equal(t, tt.want, svc.Price(context.Background()))
		})
	}
}

func TestTokenPriceCached(t *testing.T) {
	source := &fakePriceSource{price: 0.002}
	cache := &fakePriceCache{}
	svc := NewTokenPriceService(source, cache, lendMint, 0.001, time.Minute, testLogger())
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Equal(t, 0.002, svc.Price(ctx))
	assert.Equal(t, 0.002, svc.Price(ctx))
	assert.Equal(t, 1, source.calls)

	now = now.Add(2 * time.Minute)
	source.price = 0.003
	assert.Equal(t, 0.003, svc.Price(ctx))
	assert.Equal(t, 2, source.calls)
}

func TestTokenPriceConcurrent(t *testing.T) {
	source := &fakePriceSource{price: 0.002}
	svc := NewTokenPriceService(source, nil, lendMint, 0.001, time.Minute, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 0.002, svc.Price(context.Background()))
		}()
	}
	wg.Wait()
}

func TestLoansNotConfigured(t *testing.T) {
	svc := NewLoanService(nil, nil, 0.5, testLogger())
	loans, err := svc.Loans(context.Background(), userPK)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.NotNil(t, loans)
	assert.Empty(t, loans)
	assert.Equal(t, domain.TreasuryTotals{}, svc.Treasury(context.Background()))
}

func TestLoansByWallet(t *testing.T) {
	store := &fakeLoanStore{loans: []domain.Loan{
		{ID: "2", WalletAddress: userPK, TokenAmount: decimal.NewFromInt(200)},
		{ID: "1", WalletAddress: userPK, TokenAmount: decimal.NewFromInt(100)},
		{ID: "3", WalletAddress: "someone-else"},
	}}
	svc := NewLoanService(store, nil, 0.5, testLogger())

	loans, err := svc.Loans(context.Background(), userPK)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "2", loans[0].ID)

	loans, err = svc.Loans(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, loans)
	assert.Empty(t, loans)
}

func TestTreasuryZeroOnError(t *testing.T) {
	store := &fakeLoanStore{
		totals: domain.TreasuryTotals{TotalTokens: decimal.NewFromInt(5), Count: 1},
		err:    errors.New("connection refused"),
	}
	svc := NewLoanService(store, nil, 0.5, testLogger())
	assert.Equal(t, domain.TreasuryTotals{}, svc.Treasury(context.Background()))

	store.err = nil
	got := svc.Treasury(context.Background())
	assert.True(t, got.TotalTokens.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(1), got.Count)
}

func TestLoanQuote(t *testing.T) {
	prices := NewTokenPriceService(&fakePriceSource{price: 0.002}, nil, lendMint, 0.001, 0, testLogger())
	svc := NewLoanService(nil, prices, 0.5, testLogger())

	q, err := svc.Quote(context.Background(), decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "1", q.SolReceived.String())

	_, err = svc.Quote(context.Background(), decimal.Zero)
	assert.Error(t, err)
}
