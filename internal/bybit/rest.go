// Package bybit is the REST and WebSocket collaborator for the public
// Bybit V5 linear-perpetual market data API. It is the only package in this
// module allowed to know about Bybit's wire formats; everything else
// consumes trading-systemv1/internal/model types.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"trading-systemv1/internal/model"
)

const (
	defaultBaseURL   = "https://api.bybit.com"
	instrumentsPath  = "/v5/market/instruments-info"
	tickersPath      = "/v5/market/tickers"
	klinePath        = "/v5/market/kline"
	category         = "linear"
	targetQuoteCoin  = "USDT"
	tradingStatus    = "Trading"
	restTimeout      = 20 * time.Second
	defaultRetries   = 3
	retryBaseBackoff = 600 * time.Millisecond
)

// RestClient fetches instruments, tickers and klines over plain HTTP,
// retrying transient failures with linear backoff. It implements
// model.RestClient.
type RestClient struct {
	baseURL string
	http    *http.Client

	// MaxRetries overrides defaultRetries; set from
	// config.Config.HTTPRetries by the caller.
	MaxRetries int
}

// NewRestClient returns a client pointed at baseURL (empty uses the public
// Bybit endpoint).
func NewRestClient(baseURL string) *RestClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RestClient{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: restTimeout},
		MaxRetries: defaultRetries,
	}
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// doGet executes one GET with up to MaxRetries linear-backoff retries on
// transient failure (network error, non-200, non-zero retCode).
func (c *RestClient) doGet(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path + "?" + query.Encode()

	retries := c.MaxRetries
	if retries <= 0 {
		retries = defaultRetries
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		result, err := c.doGetOnce(ctx, u)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-time.After(retryBaseBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("bybit: %s: giving up after %d attempts: %w", path, retries, lastErr)
}

func (c *RestClient) doGetOnce(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.RetCode != 0 {
		return nil, fmt.Errorf("api error %d: %s", env.RetCode, env.RetMsg)
	}
	return env.Result, nil
}

// FetchInstruments retrieves the linear instrument list, already filtered
// to USDT-quoted, Trading-status symbols and de-duplicated by symbol
// (first occurrence wins).
func (c *RestClient) FetchInstruments() ([]model.Instrument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("category", category)
	q.Set("limit", "1000")

	result, err := c.doGet(ctx, instrumentsPath, q)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BaseCoin  string `json:"baseCoin"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("bybit: instruments: decode result: %w", err)
	}

	seen := make(map[string]bool, len(body.List))
	out := make([]model.Instrument, 0, len(body.List))
	for _, row := range body.List {
		if row.QuoteCoin != targetQuoteCoin || row.Status != tradingStatus {
			continue
		}
		if seen[row.Symbol] {
			continue
		}
		seen[row.Symbol] = true
		out = append(out, model.Instrument{
			Symbol:    row.Symbol,
			BaseCoin:  row.BaseCoin,
			QuoteCoin: row.QuoteCoin,
			Status:    row.Status,
		})
	}
	return out, nil
}

// FetchTickers retrieves the full tickers snapshot, keyed by symbol.
func (c *RestClient) FetchTickers() (map[string]model.TickerSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("category", category)

	result, err := c.doGet(ctx, tickersPath, q)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Ts        string `json:"ts"`
			Timestamp string `json:"timestamp"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("bybit: tickers: decode result: %w", err)
	}

	out := make(map[string]model.TickerSnapshot, len(body.List))
	for _, row := range body.List {
		price, err := parseFloat(row.LastPrice)
		if err != nil {
			continue
		}
		ts := parseIntOrZero(row.Ts)
		if ts == 0 {
			ts = parseIntOrZero(row.Timestamp)
		}
		out[row.Symbol] = model.TickerSnapshot{LastPrice: price, Ts: ts}
	}
	return out, nil
}

// FetchKlines retrieves up to limit most-recent candles for (symbol, tf),
// sorted ascending by start — Bybit may return either order.
func (c *RestClient) FetchKlines(symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("interval", tf.IntervalCode())
	q.Set("limit", strconv.Itoa(limit))

	result, err := c.doGet(ctx, klinePath, q)
	if err != nil {
		return nil, err
	}

	var body struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		return nil, fmt.Errorf("bybit: kline: decode result: %w", err)
	}

	out := make([]model.Candle, 0, len(body.List))
	for _, row := range body.List {
		c, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	// Every candle but the newest has closed; the newest is the one still
	// forming.
	for i := 0; i < len(out)-1; i++ {
		out[i].Confirm = true
	}
	return out, nil
}

// parseKlineRow parses a Bybit kline array: [start, open, high, low, close,
// volume, turnover]. Returns ok=false on any parse failure, per the
// "reject silently on parse failure" policy.
func parseKlineRow(row []string) (model.Candle, bool) {
	if len(row) < 7 {
		return model.Candle{}, false
	}
	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Candle{}, false
	}
	open, err1 := parseFloat(row[1])
	high, err2 := parseFloat(row[2])
	low, err3 := parseFloat(row[3])
	close, err4 := parseFloat(row[4])
	volume, err5 := parseFloat(row[5])
	turnover, err6 := parseFloat(row[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return model.Candle{}, false
	}
	return model.Candle{
		Start:    start,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
		Turnover: turnover,
	}, true
}
