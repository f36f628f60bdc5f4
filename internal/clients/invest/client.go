package invest

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public REST proxy for the T-Invest gRPC API.
const DefaultBaseURL = "https://invest-public-api.tinkoff.ru/rest/tinkoff.public.invest.api.contract.v1."

const (
	defaultTimeout = 10 * time.Second
	// Candle and operation listings can be large, give them more room.
	heavyTimeout = 15 * time.Second
)

// Client talks to the T-Invest REST proxy: one POST per operation,
// bearer-token auth, JSON bodies, fixed per-call timeouts.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	heavy   *http.Client
	log     zerolog.Logger
}

// Config holds client construction options.
type Config struct {
	BaseURL   string // empty means DefaultBaseURL
	Token     string
	VerifySSL bool
	Log       zerolog.Logger
}

// NewClient creates a new T-Invest API client
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var transport http.RoundTripper
	if !cfg.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: transport,
		},
		heavy: &http.Client{
			Timeout:   heavyTimeout,
			Transport: transport,
		},
		log: cfg.Log.With().Str("client", "invest").Logger(),
	}
}

// post makes a POST request to the given service method and decodes the
// response into out.
func (c *Client) post(httpClient *http.Client, method string, request, out interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	return nil
}

// GetAccounts lists the user's brokerage accounts.
func (c *Client) GetAccounts() ([]Account, error) {
	var result struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.post(c.client, "UsersService/GetAccounts", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Accounts, nil
}

// GetPortfolio fetches the portfolio snapshot for an account.
func (c *Client) GetPortfolio(accountID, currency string) (*Portfolio, error) {
	if currency == "" {
		currency = "RUB"
	}
	req := map[string]string{
		"accountId": accountID,
		"currency":  currency,
	}

	var result Portfolio
	if err := c.post(c.client, "OperationsService/GetPortfolio", req, &result); err != nil {
		return nil, err
	}
	if result.AccountID == "" {
		result.AccountID = accountID
	}
	return &result, nil
}

// GetWithdrawLimits fetches available and blocked funds for an account.
func (c *Client) GetWithdrawLimits(accountID string) (*WithdrawLimits, error) {
	req := map[string]string{"accountId": accountID}

	var result WithdrawLimits
	if err := c.post(c.client, "OperationsService/GetWithdrawLimits", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shares lists share instruments for the given instrument status.
func (c *Client) Shares(status string) ([]Instrument, error) {
	if status == "" {
		status = InstrumentStatusBase
	}
	req := map[string]string{"instrumentStatus": status}

	var result struct {
		Instruments []Instrument `json:"instruments"`
	}
	if err := c.post(c.client, "InstrumentsService/Shares", req, &result); err != nil {
		return nil, err
	}
	return result.Instruments, nil
}

// ShareByFIGI fetches share metadata for one instrument.
func (c *Client) ShareByFIGI(figi string) (*Instrument, error) {
	req := map[string]string{
		"idType": "INSTRUMENT_ID_TYPE_FIGI",
		"id":     figi,
	}

	var result struct {
		Instrument Instrument `json:"instrument"`
	}
	if err := c.post(c.client, "InstrumentsService/ShareBy", req, &result); err != nil {
		return nil, err
	}
	return &result.Instrument, nil
}

// GetLastPrices fetches the latest trade prices for a set of instruments.
func (c *Client) GetLastPrices(figis []string) ([]LastPrice, error) {
	req := map[string][]string{"figi": figis}

	var result struct {
		LastPrices []LastPrice `json:"lastPrices"`
	}
	if err := c.post(c.client, "MarketDataService/GetLastPrices", req, &result); err != nil {
		return nil, err
	}
	return result.LastPrices, nil
}

// GetCandles fetches historical candles for one instrument. Malformed
// items (for example a candle without a timestamp) are skipped with a
// warning rather than failing the whole series.
func (c *Client) GetCandles(figi string, from, to time.Time, interval string) ([]Candle, error) {
	req := map[string]string{
		"figi":     figi,
		"from":     from.UTC().Format(time.RFC3339),
		"to":       to.UTC().Format(time.RFC3339),
		"interval": interval,
	}

	var result struct {
		Candles []json.RawMessage `json:"candles"`
	}
	if err := c.post(c.heavy, "MarketDataService/GetCandles", req, &result); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(result.Candles))
	for _, raw := range result.Candles {
		var candle Candle
		if err := json.Unmarshal(raw, &candle); err != nil || candle.Time.IsZero() {
			c.log.Warn().Str("figi", figi).Msg("Skipping malformed candle")
			continue
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetOperations fetches ledger entries for an account within a window.
// Entries without a parseable date are skipped with a warning.
func (c *Client) GetOperations(accountID string, from, to time.Time, state string) ([]Operation, error) {
	if state == "" {
		state = OperationStateExecuted
	}
	req := map[string]string{
		"accountId": accountID,
		"from":      from.UTC().Format(time.RFC3339),
		"to":        to.UTC().Format(time.RFC3339),
		"state":     state,
	}

	var result struct {
		Operations []json.RawMessage `json:"operations"`
	}
	if err := c.post(c.heavy, "OperationsService/GetOperations", req, &result); err != nil {
		return nil, err
	}

	operations := make([]Operation, 0, len(result.Operations))
	for _, raw := range result.Operations {
		var op Operation
		if err := json.Unmarshal(raw, &op); err != nil || op.Date.IsZero() {
			c.log.Warn().Str("account_id", accountID).Msg("Skipping malformed operation")
			continue
		}
		operations = append(operations, op)
	}

	return operations, nil
}
