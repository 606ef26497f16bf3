package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"trading-systemv1/internal/model"
)

const PublicLinearWSURL = "wss://stream.bybit.com/v5/public/linear"

// Envelope is the generic Bybit V5 WebSocket frame: both control messages
// (subscribe ack, pong) and data frames share this shape; Topic is empty on
// control frames.
type Envelope struct {
	Op      string          `json:"op"`
	Success bool            `json:"success"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// tickerEntry is one object inside a tickers.* data array.
type tickerEntry struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// klineEntry is one object inside a kline.* data array.
type klineEntry struct {
	Start    int64  `json:"start"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}

// SubscribeFrame is the outbound subscribe control frame.
type SubscribeFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func NewSubscribeFrame(topics []string) SubscribeFrame {
	return SubscribeFrame{Op: "subscribe", Args: topics}
}

// ParsedUpdate is the normalised result of one inbound data frame: exactly
// one of Ticker or Kline is set.
type ParsedUpdate struct {
	Symbol string

	HasTicker bool
	LastPrice float64

	HasKline  bool
	Timeframe model.Timeframe
	Candle    model.Candle
	Confirmed bool
}

// ParseFrame decodes one inbound WS message and normalises it into zero or
// one ParsedUpdate. Returns ok=false for control frames, unknown topics,
// and any parse failure — all of which are dropped silently per the
// ingestion error-handling policy.
func ParseFrame(raw []byte) (ParsedUpdate, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ParsedUpdate{}, false
	}
	if env.Topic == "" {
		return ParsedUpdate{}, false
	}

	switch {
	case strings.HasPrefix(env.Topic, "tickers."):
		return parseTickerFrame(env)
	case strings.HasPrefix(env.Topic, "kline."):
		return parseKlineFrame(env)
	default:
		return ParsedUpdate{}, false
	}
}

func parseTickerFrame(env Envelope) (ParsedUpdate, bool) {
	symbol := strings.TrimPrefix(env.Topic, "tickers.")
	if symbol == "" {
		return ParsedUpdate{}, false
	}

	var entries []tickerEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		// Bybit sends a single object, not an array, for tickers.* deltas.
		var single tickerEntry
		if err2 := json.Unmarshal(env.Data, &single); err2 != nil {
			return ParsedUpdate{}, false
		}
		entries = []tickerEntry{single}
	}
	if len(entries) == 0 {
		return ParsedUpdate{}, false
	}
	last := entries[len(entries)-1]
	price, err := parseFloat(last.LastPrice)
	if err != nil {
		return ParsedUpdate{}, false
	}
	return ParsedUpdate{Symbol: symbol, HasTicker: true, LastPrice: price}, true
}

func parseKlineFrame(env Envelope) (ParsedUpdate, bool) {
	parts := strings.SplitN(env.Topic, ".", 3)
	if len(parts) != 3 {
		return ParsedUpdate{}, false
	}
	interval, symbol := parts[1], parts[2]
	tf, ok := model.TimeframeFromInterval(interval)
	if !ok {
		return ParsedUpdate{}, false
	}

	var entries []klineEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return ParsedUpdate{}, false
	}
	if len(entries) == 0 {
		return ParsedUpdate{}, false
	}
	e := entries[len(entries)-1]

	open, err1 := parseFloat(e.Open)
	high, err2 := parseFloat(e.High)
	low, err3 := parseFloat(e.Low)
	closeV, err4 := parseFloat(e.Close)
	volume, err5 := parseFloat(e.Volume)
	turnover, err6 := parseFloat(e.Turnover)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return ParsedUpdate{}, false
	}

	return ParsedUpdate{
		Symbol:    symbol,
		HasKline:  true,
		Timeframe: tf,
		Confirmed: e.Confirm,
		Candle: model.Candle{
			Start:    e.Start,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeV,
			Volume:   volume,
			Turnover: turnover,
			Confirm:  e.Confirm,
		},
	}, true
}

// TickerTopic and KlineTopic build the topic strings the subscribe frame
// and the dispatcher both need to agree on.
func TickerTopic(symbol string) string { return "tickers." + symbol }

func KlineTopic(tf model.Timeframe, symbol string) string {
	return fmt.Sprintf("kline.%s.%s", tf.IntervalCode(), symbol)
}
