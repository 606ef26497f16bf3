package model

// Candle is the normalised edge representation of an upstream OHLCV record,
// whether it arrived as a REST array or a WebSocket object. Ingestion and
// cold-start both parse into this shape before touching the store — per the
// design note against propagating polymorphic upstream payloads inward.
type Candle struct {
	Start    int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
	Confirm  bool
}

// IndexCandle is one hourly OHLC bucket of the synthetic breadth index.
type IndexCandle struct {
	StartTime int64 `json:"startTime"`

	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`

	NetPercent  float64 `json:"netPercent"`
	PositiveSum float64 `json:"positiveSum"`
	NegativeSum float64 `json:"negativeSum"`
	Count       int     `json:"count"`
}
