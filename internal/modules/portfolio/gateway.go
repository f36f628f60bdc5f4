package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
)

// portfolioCacheTTL bounds how long a portfolio snapshot is served
// without hitting the network again.
const portfolioCacheTTL = 30 * time.Second

// instrumentTypeShare is the only instrument type the bot works with.
const instrumentTypeShare = "share"

// ErrNoAccounts is returned when the account list comes back empty.
var ErrNoAccounts = errors.New("portfolio: no brokerage accounts")

// InvestAPI is the slice of the invest client the gateway needs.
type InvestAPI interface {
	GetAccounts() ([]invest.Account, error)
	GetPortfolio(accountID, currency string) (*invest.Portfolio, error)
	GetWithdrawLimits(accountID string) (*invest.WithdrawLimits, error)
	Shares(status string) ([]invest.Instrument, error)
	ShareByFIGI(figi string) (*invest.Instrument, error)
	GetLastPrices(figis []string) ([]invest.LastPrice, error)
	GetCandles(figi string, from, to time.Time, interval string) ([]invest.Candle, error)
	GetOperations(accountID string, from, to time.Time, state string) ([]invest.Operation, error)
}

// Snapshot is one cached portfolio fetch: merged regular and virtual
// share positions plus the raw portfolio payload. Treated as immutable
// once stored; replaced wholesale on the next uncached fetch.
type Snapshot struct {
	AccountID string
	Positions []invest.Position
	Portfolio *invest.Portfolio
}

// CashBalance returns the snapshot's currency balance as an amount and
// currency code.
func (s *Snapshot) CashBalance() (float64, string) {
	total := s.Portfolio.TotalAmountCurrencies
	currency := total.Currency
	if currency == "" {
		currency = "rub"
	}
	return total.Float(), currency
}

// Gateway is the market data access layer. It owns the upstream client
// and the short-TTL portfolio cache; it is constructed once at startup
// and shared by all consumers.
type Gateway struct {
	api   InvestAPI
	cache *snapshotCache
	log   zerolog.Logger
}

// NewGateway creates a new market data gateway
func NewGateway(api InvestAPI, log zerolog.Logger) *Gateway {
	return &Gateway{
		api:   api,
		cache: newSnapshotCache(portfolioCacheTTL),
		log:   log.With().Str("component", "gateway").Logger(),
	}
}

// Positions fetches the merged portfolio positions for an account. An
// empty accountID resolves to the first account from GetAccounts.
// Positions from the virtual (gift share) list are tagged IsVirtual and
// everything that is not a share is filtered out.
//
// A cache hit within the TTL short-circuits the network entirely.
func (g *Gateway) Positions(accountID string, useCache bool) (*Snapshot, error) {
	if accountID == "" {
		accounts, err := g.api.GetAccounts()
		if err != nil {
			g.log.Error().Err(err).Msg("Failed to list accounts")
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
		if len(accounts) == 0 {
			return nil, ErrNoAccounts
		}
		accountID = accounts[0].ID
	}

	key := "portfolio:" + accountID
	if useCache {
		if snap, ok := g.cache.get(key); ok {
			return snap, nil
		}
	}

	p, err := g.api.GetPortfolio(accountID, "RUB")
	if err != nil {
		g.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch portfolio")
		return nil, fmt.Errorf("failed to fetch portfolio: %w", err)
	}

	positions := make([]invest.Position, 0, len(p.Positions)+len(p.VirtualPositions))
	for _, pos := range p.Positions {
		if pos.InstrumentType == instrumentTypeShare {
			positions = append(positions, pos)
		}
	}
	for _, pos := range p.VirtualPositions {
		if pos.InstrumentType == instrumentTypeShare {
			pos.IsVirtual = true
			positions = append(positions, pos)
		}
	}

	snap := &Snapshot{AccountID: accountID, Positions: positions, Portfolio: p}
	if useCache {
		g.cache.put(key, snap)
	}
	return snap, nil
}

// Accounts lists the user's brokerage accounts.
func (g *Gateway) Accounts() ([]invest.Account, error) {
	accounts, err := g.api.GetAccounts()
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to list accounts")
		return nil, err
	}
	return accounts, nil
}

// ShareInfo fetches share metadata for one FIGI.
func (g *Gateway) ShareInfo(figi string) (*invest.Instrument, error) {
	info, err := g.api.ShareByFIGI(figi)
	if err != nil {
		g.log.Error().Err(err).Str("figi", figi).Msg("Failed to fetch share info")
		return nil, err
	}
	return info, nil
}

// Shares lists the tradable share universe.
func (g *Gateway) Shares() ([]invest.Instrument, error) {
	instruments, err := g.api.Shares(invest.InstrumentStatusBase)
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to list shares")
		return nil, err
	}

	shares := make([]invest.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if inst.InstrumentType == "" || inst.InstrumentType == instrumentTypeShare {
			shares = append(shares, inst)
		}
	}
	return shares, nil
}

// LastPrices returns the latest known price per FIGI. Instruments the
// upstream has no price for are simply absent from the map.
func (g *Gateway) LastPrices(figis []string) (map[string]float64, error) {
	if len(figis) == 0 {
		return map[string]float64{}, nil
	}

	prices, err := g.api.GetLastPrices(figis)
	if err != nil {
		g.log.Error().Err(err).Msg("Failed to fetch last prices")
		return nil, err
	}

	out := make(map[string]float64, len(prices))
	for _, lp := range prices {
		if v := lp.Price.Float(); v > 0 {
			out[lp.FIGI] = v
		}
	}
	return out, nil
}

// Candles fetches historical candles for one instrument.
func (g *Gateway) Candles(figi string, from, to time.Time, interval string) ([]invest.Candle, error) {
	candles, err := g.api.GetCandles(figi, from, to, interval)
	if err != nil {
		g.log.Error().Err(err).Str("figi", figi).Msg("Failed to fetch candles")
		return nil, err
	}
	return candles, nil
}

// Operations fetches executed ledger entries for an account.
func (g *Gateway) Operations(accountID string, from, to time.Time) ([]invest.Operation, error) {
	ops, err := g.api.GetOperations(accountID, from, to, invest.OperationStateExecuted)
	if err != nil {
		g.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch operations")
		return nil, err
	}
	return ops, nil
}

// WithdrawLimits fetches available and blocked funds for an account.
func (g *Gateway) WithdrawLimits(accountID string) (*invest.WithdrawLimits, error) {
	limits, err := g.api.GetWithdrawLimits(accountID)
	if err != nil {
		g.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to fetch withdraw limits")
		return nil, err
	}
	return limits, nil
}
