// Package history reconstructs portfolio value over time. The upstream
// API has no portfolio-history endpoint, so past values are recovered by
// replaying the operations ledger backward from the current state and
// revaluing the reconstructed holdings against historical candle closes.
package history

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

// Point is one sample of portfolio value (or instrument price).
type Point struct {
	Time  time.Time
	Value float64
}

// Series is an ascending value-over-time series. Degraded marks the
// constant-holdings fallback used when the operations ledger was
// unreachable: the points are approximate, not exact.
type Series struct {
	Points   []Point
	Degraded bool
}

// Checkpoint is a reconstructed portfolio state in effect from From
// (inclusive) until the next checkpoint. The first checkpoint of a
// replay has a zero From and covers everything earlier.
type Checkpoint struct {
	From     time.Time
	Holdings map[string]float64
	Cash     float64
}

// marketData is the slice of the gateway the reconstructor needs.
type marketData interface {
	Positions(accountID string, useCache bool) (*portfolio.Snapshot, error)
	Candles(figi string, from, to time.Time, interval string) ([]invest.Candle, error)
	Operations(accountID string, from, to time.Time) ([]invest.Operation, error)
}

// Reconstructor rebuilds portfolio value series from the ledger. It owns
// no state beyond its collaborators; every call works on fresh data.
type Reconstructor struct {
	data marketData
	log  zerolog.Logger
	now  func() time.Time
}

// NewReconstructor creates a new history reconstructor
func NewReconstructor(data marketData, log zerolog.Logger) *Reconstructor {
	return &Reconstructor{
		data: data,
		log:  log.With().Str("component", "history").Logger(),
		now:  time.Now,
	}
}

// Reconstruct returns the portfolio value at each available candle
// bucket in [from, to].
//
// When the operations ledger is unreachable the series falls back to
// revaluing the current holdings across the window and is flagged
// Degraded; trades inside the window are then invisible.
func (r *Reconstructor) Reconstruct(accountID string, from, to time.Time) (Series, error) {
	snap, err := r.data.Positions(accountID, true)
	if err != nil {
		return Series{}, fmt.Errorf("failed to fetch positions: %w", err)
	}

	holdings := make(map[string]float64, len(snap.Positions))
	for _, pos := range snap.Positions {
		if qty := pos.Quantity.Float(); qty != 0 {
			holdings[pos.FIGI] += qty
		}
	}
	cash, _ := snap.CashBalance()

	var (
		checkpoints []Checkpoint
		degraded    bool
	)
	ops, err := r.data.Operations(snap.AccountID, from, to)
	if err != nil {
		r.log.Warn().Err(err).Msg("Operations unavailable, using constant-holdings fallback")
		degraded = true
		checkpoints = []Checkpoint{{Holdings: holdings, Cash: cash}}
	} else {
		checkpoints = Replay(holdings, cash, ops)
	}

	interval := intervalFor(from, to)
	candles := r.fetchCandles(figisOf(checkpoints), from, to, interval)

	points := r.valueSeries(checkpoints, candles)
	return Series{Points: points, Degraded: degraded}, nil
}

// PriceHistory returns the close-price series for one instrument.
func (r *Reconstructor) PriceHistory(figi string, from, to time.Time) ([]Point, error) {
	candles, err := r.data.Candles(figi, from, to, intervalFor(from, to))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles: %w", err)
	}

	points := make([]Point, 0, len(candles))
	for _, c := range candles {
		points = append(points, Point{Time: c.Time, Value: c.Close.Float()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// ValueYesterday returns the portfolio value at the end of yesterday.
// An empty reconstruction yields ok=false, never a misleading zero.
func (r *Reconstructor) ValueYesterday(accountID string) (float64, bool) {
	now := r.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfYesterday := startOfToday.AddDate(0, 0, -1)

	series, err := r.Reconstruct(accountID, startOfYesterday, startOfToday)
	if err != nil || len(series.Points) == 0 {
		return 0, false
	}
	return series.Points[len(series.Points)-1].Value, true
}

// Replay walks operations newest to oldest, reversing each one against
// the current state, and returns the resulting checkpoints ascending by
// their effective-from time.
//
// Reversing a buy removes the bought quantity (dropping the holding at
// or below zero) and puts the spent cash back; reversing a sell restores
// the sold quantity and takes the proceeds back. Payment carries the
// signed cash effect, so both directions reduce to cash -= payment.
// Strict timestamp-descending order is what makes each checkpoint's
// validity window correct.
func Replay(current map[string]float64, cash float64, ops []invest.Operation) []Checkpoint {
	sorted := make([]invest.Operation, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })

	state := cloneHoldings(current)
	checkpoints := make([]Checkpoint, 0, len(sorted)+1)

	for _, op := range sorted {
		qty := math.Abs(op.Quantity.Float())

		switch op.OperationType {
		case invest.OperationTypeBuy, invest.OperationTypeBuyCard:
			checkpoints = append(checkpoints, Checkpoint{From: op.Date, Holdings: cloneHoldings(state), Cash: cash})
			state[op.FIGI] -= qty
			if state[op.FIGI] <= 0 {
				delete(state, op.FIGI)
			}
			cash -= op.Payment.Float()
		case invest.OperationTypeSell:
			checkpoints = append(checkpoints, Checkpoint{From: op.Date, Holdings: cloneHoldings(state), Cash: cash})
			state[op.FIGI] += qty
			cash -= op.Payment.Float()
		}
	}

	// Open-start state: what held before the oldest replayed operation.
	checkpoints = append(checkpoints, Checkpoint{Holdings: state, Cash: cash})

	// The walk produced them newest first.
	for i, j := 0, len(checkpoints)-1; i < j; i, j = i+1, j-1 {
		checkpoints[i], checkpoints[j] = checkpoints[j], checkpoints[i]
	}
	return checkpoints
}

// StateAt returns the checkpoint in effect at t: the last one whose
// effective-from time is not after t. checkpoints must be ascending and
// start with a zero From.
func StateAt(checkpoints []Checkpoint, t time.Time) Checkpoint {
	i := sort.Search(len(checkpoints), func(i int) bool {
		return checkpoints[i].From.After(t)
	})
	if i == 0 {
		return checkpoints[0]
	}
	return checkpoints[i-1]
}

// intervalFor picks the candle bucket size for a window: hourly up to a
// day, daily beyond.
func intervalFor(from, to time.Time) string {
	if to.Sub(from) <= 24*time.Hour {
		return invest.CandleIntervalHour
	}
	return invest.CandleIntervalDay
}

// fetchCandles loads close candles for every instrument that appears in
// any checkpoint. A failed instrument is skipped with a warning; the
// remaining series still gets built.
func (r *Reconstructor) fetchCandles(figis []string, from, to time.Time, interval string) map[string][]invest.Candle {
	out := make(map[string][]invest.Candle, len(figis))
	for _, figi := range figis {
		candles, err := r.data.Candles(figi, from, to, interval)
		if err != nil {
			r.log.Warn().Err(err).Str("figi", figi).Msg("Skipping instrument without candles")
			continue
		}
		sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
		out[figi] = candles
	}
	return out
}

// valueSeries combines checkpoints and candle closes into an ascending
// value series, one point per candle bucket present in any instrument.
func (r *Reconstructor) valueSeries(checkpoints []Checkpoint, candles map[string][]invest.Candle) []Point {
	buckets := make(map[int64]time.Time)
	for _, series := range candles {
		for _, c := range series {
			buckets[c.Time.Unix()] = c.Time
		}
	}

	times := make([]time.Time, 0, len(buckets))
	for _, t := range buckets {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	points := make([]Point, 0, len(times))
	for _, t := range times {
		cp := StateAt(checkpoints, t)

		value := cp.Cash
		for figi, qty := range cp.Holdings {
			price, ok := closeAtOrBefore(candles[figi], t)
			if !ok {
				r.log.Warn().Str("figi", figi).Time("at", t).Msg("No close price yet, position skipped for bucket")
				continue
			}
			value += qty * price
		}
		points = append(points, Point{Time: t, Value: value})
	}
	return points
}

// closeAtOrBefore returns the latest close at or before t from an
// ascending candle slice.
func closeAtOrBefore(candles []invest.Candle, t time.Time) (float64, bool) {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Time.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return candles[i-1].Close.Float(), true
}

// figisOf collects every instrument appearing in any checkpoint.
func figisOf(checkpoints []Checkpoint) []string {
	seen := make(map[string]bool)
	var figis []string
	for _, cp := range checkpoints {
		for figi := range cp.Holdings {
			if !seen[figi] {
				seen[figi] = true
				figis = append(figis, figi)
			}
		}
	}
	sort.Strings(figis)
	return figis
}

func cloneHoldings(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PeriodWindow maps a chart period tag to a [from, to] window ending now.
func PeriodWindow(period string, now time.Time) (time.Time, time.Time, error) {
	var span time.Duration
	switch period {
	case "1h":
		span = time.Hour
	case "1d":
		span = 24 * time.Hour
	case "1w":
		span = 7 * 24 * time.Hour
	case "1m":
		span = 30 * 24 * time.Hour
	case "1y":
		span = 365 * 24 * time.Hour
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
	return now.Add(-span), now, nil
}
