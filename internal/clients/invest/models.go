package invest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Candle interval names accepted by MarketDataService/GetCandles.
const (
	CandleIntervalHour = "CANDLE_INTERVAL_HOUR"
	CandleIntervalDay  = "CANDLE_INTERVAL_DAY"
)

// Operation states and types used by OperationsService/GetOperations.
const (
	OperationStateExecuted = "OPERATION_STATE_EXECUTED"

	OperationTypeBuy     = "OPERATION_TYPE_BUY"
	OperationTypeBuyCard = "OPERATION_TYPE_BUY_CARD"
	OperationTypeSell    = "OPERATION_TYPE_SELL"
)

// InstrumentStatusBase is the instrument universe used for Shares listings.
const InstrumentStatusBase = "INSTRUMENT_STATUS_BASE"

// Quotation is the API's fixed-point numeric value: units + nano/1e9.
//
// The REST proxy is loose about how it encodes these: depending on the
// endpoint the same field arrives as an object with string or number
// fields, as a bare number, or as a numeric string. Decoding tolerates
// all of those and treats anything malformed as zero instead of failing
// the whole payload.
type Quotation struct {
	Units int64 `json:"units"`
	Nano  int32 `json:"nano"`
}

// Float converts the fixed-point value to a float64.
func (q Quotation) Float() float64 {
	return float64(q.Units) + float64(q.Nano)/1e9
}

// IsZero reports whether the value is exactly zero.
func (q Quotation) IsZero() bool {
	return q.Units == 0 && q.Nano == 0
}

// QuotationFromFloat builds a Quotation from a float64 value.
func QuotationFromFloat(v float64) Quotation {
	units := math.Trunc(v)
	nano := math.Round((v - units) * 1e9)
	return Quotation{Units: int64(units), Nano: int32(nano)}
}

// UnmarshalJSON accepts object, number, numeric-string and null encodings.
// It never returns an error: malformed input decodes as zero.
func (q *Quotation) UnmarshalJSON(data []byte) error {
	*q = Quotation{}

	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}

	if s[0] == '{' {
		var raw struct {
			Units json.RawMessage `json:"units"`
			Nano  json.RawMessage `json:"nano"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		q.Units = looseInt64(raw.Units)
		q.Nano = int32(looseInt64(raw.Nano))
		return nil
	}

	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*q = QuotationFromFloat(f)
	return nil
}

// looseInt64 parses a raw JSON scalar that may be a number, a quoted
// number, or garbage. Garbage becomes zero.
func looseInt64(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// MoneyValue is a Quotation tagged with a currency code.
type MoneyValue struct {
	Quotation
	Currency string
}

// UnmarshalJSON decodes the amount with Quotation's loose rules and picks
// up the currency when the payload is object-shaped.
func (m *MoneyValue) UnmarshalJSON(data []byte) error {
	*m = MoneyValue{}

	var cur struct {
		Currency string `json:"currency"`
	}
	// Scalar payloads fail this decode, which just leaves currency empty.
	_ = json.Unmarshal(data, &cur)
	m.Currency = cur.Currency

	return m.Quotation.UnmarshalJSON(data)
}

// Account is a brokerage account.
type Account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Position is one portfolio holding. Virtual (gift) shares arrive in a
// separate list on the portfolio payload and are tagged by the gateway;
// the flag is never present on the wire.
type Position struct {
	FIGI                 string     `json:"figi"`
	Ticker               string     `json:"ticker"`
	InstrumentType       string     `json:"instrumentType"`
	Quantity             Quotation  `json:"quantity"`
	AveragePositionPrice MoneyValue `json:"averagePositionPrice"`
	CurrentPrice         MoneyValue `json:"currentPrice"`
	IsVirtual            bool       `json:"-"`
}

// Currency returns the position's currency, preferring the average price
// tag and falling back to the current price tag.
func (p Position) Currency() string {
	if p.AveragePositionPrice.Currency != "" {
		return p.AveragePositionPrice.Currency
	}
	return p.CurrentPrice.Currency
}

// Portfolio is the raw portfolio snapshot for one account.
type Portfolio struct {
	AccountID             string     `json:"accountId"`
	Positions             []Position `json:"positions"`
	VirtualPositions      []Position `json:"virtualPositions"`
	TotalAmountCurrencies MoneyValue `json:"totalAmountCurrencies"`
	TotalAmountShares     MoneyValue `json:"totalAmountShares"`
	TotalAmountPortfolio  MoneyValue `json:"totalAmountPortfolio"`
}

// WithdrawLimits describes available and blocked funds.
type WithdrawLimits struct {
	Money   []MoneyValue `json:"money"`
	Blocked []MoneyValue `json:"blocked"`
}

// Instrument is share metadata from InstrumentsService.
type Instrument struct {
	FIGI           string `json:"figi"`
	Ticker         string `json:"ticker"`
	Name           string `json:"name"`
	Currency       string `json:"currency"`
	Lot            int    `json:"lot"`
	Exchange       string `json:"exchange"`
	InstrumentType string `json:"instrumentType"`
}

// LastPrice is the latest trade price for one instrument.
type LastPrice struct {
	FIGI  string    `json:"figi"`
	Price Quotation `json:"price"`
	Time  time.Time `json:"time"`
}

// Candle is one historical price bucket.
type Candle struct {
	Time       time.Time `json:"time"`
	Open       Quotation `json:"open"`
	Close      Quotation `json:"close"`
	High       Quotation `json:"high"`
	Low        Quotation `json:"low"`
	IsComplete bool      `json:"isComplete"`
}

// Operation is one executed ledger entry. Quantity is a signed magnitude
// and Payment is the signed cash effect (negative for purchases).
type Operation struct {
	ID            string     `json:"id"`
	Date          time.Time  `json:"date"`
	OperationType string     `json:"operationType"`
	FIGI          string     `json:"figi"`
	Quantity      Quotation  `json:"quantity"`
	Payment       MoneyValue `json:"payment"`
	State         string     `json:"state"`
}
