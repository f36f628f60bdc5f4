package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
)

// fakeAPI is a canned-response InvestAPI that counts portfolio fetches.
type fakeAPI struct {
	accounts       []invest.Account
	accountsErr    error
	portfolio      *invest.Portfolio
	portfolioErr   error
	portfolioCalls int
	lastPrices     []invest.LastPrice
	operations     []invest.Operation
	operationsErr  error
	candles        map[string][]invest.Candle
}

func (f *fakeAPI) GetAccounts() ([]invest.Account, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeAPI) GetPortfolio(accountID, currency string) (*invest.Portfolio, error) {
	f.portfolioCalls++
	if f.portfolioErr != nil {
		return nil, f.portfolioErr
	}
	p := *f.portfolio
	p.AccountID = accountID
	return &p, nil
}

func (f *fakeAPI) GetWithdrawLimits(accountID string) (*invest.WithdrawLimits, error) {
	return &invest.WithdrawLimits{}, nil
}

func (f *fakeAPI) Shares(status string) ([]invest.Instrument, error) {
	return nil, nil
}

func (f *fakeAPI) ShareByFIGI(figi string) (*invest.Instrument, error) {
	return &invest.Instrument{FIGI: figi}, nil
}

func (f *fakeAPI) GetLastPrices(figis []string) ([]invest.LastPrice, error) {
	return f.lastPrices, nil
}

func (f *fakeAPI) GetCandles(figi string, from, to time.Time, interval string) ([]invest.Candle, error) {
	return f.candles[figi], nil
}

func (f *fakeAPI) GetOperations(accountID string, from, to time.Time, state string) ([]invest.Operation, error) {
	return f.operations, f.operationsErr
}

func sharePosition(figi string, qty float64) invest.Position {
	return invest.Position{
		FIGI:           figi,
		InstrumentType: "share",
		Quantity:       invest.QuotationFromFloat(qty),
	}
}

func testPortfolio() *invest.Portfolio {
	bond := sharePosition("BBG00000BOND", 3)
	bond.InstrumentType = "bond"
	return &invest.Portfolio{
		Positions:        []invest.Position{sharePosition("BBG000000001", 10), bond},
		VirtualPositions: []invest.Position{sharePosition("BBG00000GIFT", 1)},
	}
}

func TestGatewayPositionsFiltersAndTags(t *testing.T) {
	api := &fakeAPI{portfolio: testPortfolio()}
	g := NewGateway(api, zerolog.Nop())

	snap, err := g.Positions("acc-1", false)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 2, "bond filtered out")

	assert.Equal(t, "BBG000000001", snap.Positions[0].FIGI)
	assert.False(t, snap.Positions[0].IsVirtual)
	assert.Equal(t, "BBG00000GIFT", snap.Positions[1].FIGI)
	assert.True(t, snap.Positions[1].IsVirtual)
}

func TestGatewayPositionsCaching(t *testing.T) {
	api := &fakeAPI{portfolio: testPortfolio()}
	g := NewGateway(api, zerolog.Nop())

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	g.cache.now = func() time.Time { return now }

	_, err := g.Positions("acc-1", true)
	require.NoError(t, err)
	_, err = g.Positions("acc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, api.portfolioCalls, "second call within TTL served from cache")

	now = now.Add(portfolioCacheTTL)
	_, err = g.Positions("acc-1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, api.portfolioCalls, "expired entry refetched")

	// useCache=false always bypasses.
	_, err = g.Positions("acc-1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, api.portfolioCalls)
}

func TestGatewayPositionsResolvesFirstAccount(t *testing.T) {
	api := &fakeAPI{
		accounts:  []invest.Account{{ID: "first"}, {ID: "second"}},
		portfolio: testPortfolio(),
	}
	g := NewGateway(api, zerolog.Nop())

	snap, err := g.Positions("", false)
	require.NoError(t, err)
	assert.Equal(t, "first", snap.AccountID)
}

func TestGatewayPositionsNoAccounts(t *testing.T) {
	g := NewGateway(&fakeAPI{}, zerolog.Nop())

	_, err := g.Positions("", false)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestGatewayPositionsFetchError(t *testing.T) {
	api := &fakeAPI{portfolioErr: errors.New("upstream down")}
	g := NewGateway(api, zerolog.Nop())

	_, err := g.Positions("acc-1", true)
	require.Error(t, err)
}

func TestGatewayLastPricesDropsNonPositive(t *testing.T) {
	api := &fakeAPI{lastPrices: []invest.LastPrice{
		{FIGI: "A", Price: invest.QuotationFromFloat(101.5)},
		{FIGI: "B", Price: invest.Quotation{}},
	}}
	g := NewGateway(api, zerolog.Nop())

	prices, err := g.LastPrices([]string{"A", "B"})
	require.NoError(t, err)
	assert.InDelta(t, 101.5, prices["A"], 1e-9)
	_, ok := prices["B"]
	assert.False(t, ok, "zero price means no data, not a free instrument")
}

func TestGatewayLastPricesEmptyInput(t *testing.T) {
	g := NewGateway(&fakeAPI{}, zerolog.Nop())

	prices, err := g.LastPrices(nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestSnapshotCashBalance(t *testing.T) {
	snap := &Snapshot{Portfolio: &invest.Portfolio{
		TotalAmountCurrencies: invest.MoneyValue{
			Quotation: invest.QuotationFromFloat(500),
			Currency:  "rub",
		},
	}}
	amount, currency := snap.CashBalance()
	assert.InDelta(t, 500.0, amount, 1e-9)
	assert.Equal(t, "rub", currency)

	snap.Portfolio.TotalAmountCurrencies.Currency = ""
	_, currency = snap.CashBalance()
	assert.Equal(t, "rub", currency, "missing currency defaults to rub")
}
