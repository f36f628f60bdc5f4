package history

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r7zex/t-invest-bot/internal/clients/invest"
	"github.com/r7zex/t-invest-bot/internal/modules/portfolio"
)

type fakeData struct {
	snap          *portfolio.Snapshot
	snapErr       error
	candles       map[string][]invest.Candle
	candlesErr    map[string]error
	operations    []invest.Operation
	operationsErr error
}

func (f *fakeData) Positions(accountID string, useCache bool) (*portfolio.Snapshot, error) {
	return f.snap, f.snapErr
}

func (f *fakeData) Candles(figi string, from, to time.Time, interval string) ([]invest.Candle, error) {
	if err := f.candlesErr[figi]; err != nil {
		return nil, err
	}
	return f.candles[figi], nil
}

func (f *fakeData) Operations(accountID string, from, to time.Time) ([]invest.Operation, error) {
	return f.operations, f.operationsErr
}

func holding(figi string, qty float64) invest.Position {
	return invest.Position{
		FIGI:           figi,
		InstrumentType: "share",
		Quantity:       invest.QuotationFromFloat(qty),
	}
}

func snapshot(cash float64, positions ...invest.Position) *portfolio.Snapshot {
	return &portfolio.Snapshot{
		AccountID: "acc-1",
		Positions: positions,
		Portfolio: &invest.Portfolio{
			TotalAmountCurrencies: invest.MoneyValue{
				Quotation: invest.QuotationFromFloat(cash),
				Currency:  "rub",
			},
		},
	}
}

func buyOp(figi string, qty, payment float64, at time.Time) invest.Operation {
	return invest.Operation{
		ID:            "op-" + figi,
		Date:          at,
		OperationType: invest.OperationTypeBuy,
		FIGI:          figi,
		Quantity:      invest.QuotationFromFloat(qty),
		Payment: invest.MoneyValue{
			Quotation: invest.QuotationFromFloat(payment),
			Currency:  "rub",
		},
	}
}

func candleSeries(times []time.Time, closes []float64) []invest.Candle {
	out := make([]invest.Candle, len(times))
	for i := range times {
		out[i] = invest.Candle{Time: times[i], Close: invest.QuotationFromFloat(closes[i])}
	}
	return out
}

func TestReplayReversesBuy(t *testing.T) {
	opTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	current := map[string]float64{"F1": 10, "F2": 5}

	// Bought 5 of F2 for 500: before the buy there was no F2 and 500 more cash.
	cps := Replay(current, 100, []invest.Operation{buyOp("F2", 5, -500, opTime)})
	require.Len(t, cps, 2)

	before, after := cps[0], cps[1]
	assert.True(t, before.From.IsZero(), "open-start checkpoint comes first")
	assert.Equal(t, map[string]float64{"F1": 10}, before.Holdings)
	assert.InDelta(t, 600.0, before.Cash, 1e-9)

	assert.Equal(t, opTime, after.From)
	assert.Equal(t, current, after.Holdings)
	assert.InDelta(t, 100.0, after.Cash, 1e-9)
}

func TestReplayReversesSell(t *testing.T) {
	opTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	sell := buyOp("F1", 3, 300, opTime)
	sell.OperationType = invest.OperationTypeSell

	cps := Replay(map[string]float64{"F1": 7}, 400, []invest.Operation{sell})
	require.Len(t, cps, 2)

	assert.Equal(t, map[string]float64{"F1": 10}, cps[0].Holdings)
	assert.InDelta(t, 100.0, cps[0].Cash, 1e-9)
}

func TestReplaySkipsUnknownTypes(t *testing.T) {
	div := invest.Operation{
		Date:          time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		OperationType: "OPERATION_TYPE_DIVIDEND",
		FIGI:          "F1",
		Payment:       invest.MoneyValue{Quotation: invest.QuotationFromFloat(50)},
	}

	cps := Replay(map[string]float64{"F1": 10}, 100, []invest.Operation{div})
	require.Len(t, cps, 1, "non-trade operations add no checkpoint")
	assert.InDelta(t, 100.0, cps[0].Cash, 1e-9, "and leave cash untouched")
}

func TestReplayUnsortedInput(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	ops := []invest.Operation{
		buyOp("F1", 5, -500, t1),
		buyOp("F1", 5, -600, t2),
	}
	forward := Replay(map[string]float64{"F1": 10}, 0, ops)

	ops[0], ops[1] = ops[1], ops[0]
	swapped := Replay(map[string]float64{"F1": 10}, 0, ops)

	require.Equal(t, forward, swapped, "replay sorts internally")
	require.Len(t, forward, 3)
	assert.Empty(t, forward[0].Holdings)
	assert.InDelta(t, 1100.0, forward[0].Cash, 1e-9)
	assert.Equal(t, map[string]float64{"F1": 5}, forward[1].Holdings)
	assert.Equal(t, map[string]float64{"F1": 10}, forward[2].Holdings)
}

func TestReplayEmptyLedger(t *testing.T) {
	current := map[string]float64{"F1": 10}
	cps := Replay(current, 100, nil)
	require.Len(t, cps, 1)
	assert.True(t, cps[0].From.IsZero())
	assert.Equal(t, current, cps[0].Holdings)
	assert.InDelta(t, 100.0, cps[0].Cash, 1e-9)
}

func TestStateAt(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	cps := []Checkpoint{
		{Cash: 1},
		{From: t1, Cash: 2},
		{From: t2, Cash: 3},
	}

	assert.InDelta(t, 1.0, StateAt(cps, t1.Add(-time.Minute)).Cash, 1e-9)
	assert.InDelta(t, 2.0, StateAt(cps, t1).Cash, 1e-9, "boundary belongs to the newer state")
	assert.InDelta(t, 2.0, StateAt(cps, t2.Add(-time.Second)).Cash, 1e-9)
	assert.InDelta(t, 3.0, StateAt(cps, t2.Add(time.Hour)).Cash, 1e-9)
}

func TestReconstructValuesSeries(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	opTime := from.Add(24 * time.Hour)

	day1 := from.Add(10 * time.Hour)
	day2 := day1.Add(24 * time.Hour)

	data := &fakeData{
		snap: snapshot(100, holding("F1", 10), holding("F2", 5)),
		candles: map[string][]invest.Candle{
			"F1": candleSeries([]time.Time{day1, day2}, []float64{50, 60}),
			"F2": candleSeries([]time.Time{day1, day2}, []float64{100, 110}),
		},
		// Bought 5 of F2 for 500 between the two candle days.
		operations: []invest.Operation{buyOp("F2", 5, -500, opTime)},
	}

	r := NewReconstructor(data, zerolog.Nop())
	series, err := r.Reconstruct("acc-1", from, to)
	require.NoError(t, err)
	assert.False(t, series.Degraded)
	require.Len(t, series.Points, 2)

	// Day 1 precedes the buy: no F2 position, the 500 still in cash.
	// 10*50 + (100+500) = 1100.
	assert.InDelta(t, 1100.0, series.Points[0].Value, 1e-9)
	// Day 2: 10*60 + 5*110 + 100 = 1250.
	assert.InDelta(t, 1250.0, series.Points[1].Value, 1e-9)
	assert.True(t, series.Points[0].Time.Before(series.Points[1].Time))
}

func TestReconstructDegradedFallback(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	day1 := from.Add(10 * time.Hour)

	data := &fakeData{
		snap: snapshot(100, holding("F1", 10)),
		candles: map[string][]invest.Candle{
			"F1": candleSeries([]time.Time{day1}, []float64{50}),
		},
		operationsErr: errors.New("ledger down"),
	}

	r := NewReconstructor(data, zerolog.Nop())
	series, err := r.Reconstruct("acc-1", from, to)
	require.NoError(t, err)
	assert.True(t, series.Degraded)
	require.Len(t, series.Points, 1)
	assert.InDelta(t, 600.0, series.Points[0].Value, 1e-9)
}

func TestReconstructEmptyLedgerMatchesFallbackValues(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	day1 := from.Add(10 * time.Hour)
	day2 := day1.Add(24 * time.Hour)

	data := &fakeData{
		snap: snapshot(100, holding("F1", 10)),
		candles: map[string][]invest.Candle{
			"F1": candleSeries([]time.Time{day1, day2}, []float64{50, 60}),
		},
	}

	r := NewReconstructor(data, zerolog.Nop())

	clean, err := r.Reconstruct("acc-1", from, to)
	require.NoError(t, err)

	data.operationsErr = errors.New("ledger down")
	degraded, err := r.Reconstruct("acc-1", from, to)
	require.NoError(t, err)

	assert.False(t, clean.Degraded)
	assert.True(t, degraded.Degraded)
	assert.Equal(t, clean.Points, degraded.Points, "no trades means both paths agree")
}

func TestReconstructSkipsInstrumentWithoutCandles(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)
	day1 := from.Add(10 * time.Hour)

	data := &fakeData{
		snap: snapshot(100, holding("F1", 10), holding("F2", 5)),
		candles: map[string][]invest.Candle{
			"F1": candleSeries([]time.Time{day1}, []float64{50}),
		},
		candlesErr: map[string]error{"F2": errors.New("no data")},
	}

	r := NewReconstructor(data, zerolog.Nop())
	series, err := r.Reconstruct("acc-1", from, to)
	require.NoError(t, err)
	require.Len(t, series.Points, 1)
	assert.InDelta(t, 600.0, series.Points[0].Value, 1e-9, "unpriceable position contributes nothing")
}

func TestIntervalFor(t *testing.T) {
	now := time.Now()
	assert.Equal(t, invest.CandleIntervalHour, intervalFor(now.Add(-time.Hour), now))
	assert.Equal(t, invest.CandleIntervalHour, intervalFor(now.Add(-24*time.Hour), now))
	assert.Equal(t, invest.CandleIntervalDay, intervalFor(now.Add(-25*time.Hour), now))
}

func TestValueYesterday(t *testing.T) {
	now := time.Date(2024, 6, 2, 15, 0, 0, 0, time.UTC)
	yesterdayClose := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

	data := &fakeData{
		snap: snapshot(100, holding("F1", 10)),
		candles: map[string][]invest.Candle{
			"F1": candleSeries([]time.Time{yesterdayClose}, []float64{50}),
		},
	}

	r := NewReconstructor(data, zerolog.Nop())
	r.now = func() time.Time { return now }

	value, ok := r.ValueYesterday("acc-1")
	require.True(t, ok)
	assert.InDelta(t, 600.0, value, 1e-9)
}

func TestValueYesterdayUnavailable(t *testing.T) {
	data := &fakeData{snap: snapshot(0)}
	r := NewReconstructor(data, zerolog.Nop())

	_, ok := r.ValueYesterday("acc-1")
	assert.False(t, ok, "no candle buckets means no baseline")
}

func TestPriceHistory(t *testing.T) {
	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	data := &fakeData{candles: map[string][]invest.Candle{
		"F1": candleSeries([]time.Time{t2, t1}, []float64{51, 50}),
	}}

	r := NewReconstructor(data, zerolog.Nop())
	points, err := r.PriceHistory("F1", t1.Add(-time.Hour), t2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 50.0, points[0].Value, 1e-9, "points sorted ascending")
	assert.InDelta(t, 51.0, points[1].Value, 1e-9)
}

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	from, to, err := PeriodWindow("1d", now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.Add(-24*time.Hour), from)

	_, _, err = PeriodWindow("2h", now)
	assert.Error(t, err)
}
