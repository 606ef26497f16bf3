package model

// Entry holds the canonical per-symbol state. Created once during
// cold-start and never destroyed.
type Entry struct {
	Symbol    string `json:"symbol"`
	BaseCoin  string `json:"baseCoin"`
	QuoteCoin string `json:"quoteCoin"`

	LastPrice          *float64 `json:"lastPrice"`
	LastPriceUpdatedAt int64    `json:"lastPriceUpdatedAt"`

	Metrics map[Timeframe]*Metric `json:"metrics"`
}

// NewEntry builds an Entry with all six timeframe slots present and empty,
// per the invariant that absence of data is represented by null optional
// fields, never by a missing slot.
func NewEntry(symbol, baseCoin, quoteCoin string) *Entry {
	e := &Entry{
		Symbol:    symbol,
		BaseCoin:  baseCoin,
		QuoteCoin: quoteCoin,
		Metrics:   make(map[Timeframe]*Metric, len(Timeframes)),
	}
	for _, tf := range Timeframes {
		e.Metrics[tf] = &Metric{Timeframe: tf}
	}
	return e
}

// Metric holds the per-(symbol, timeframe) price-change state.
type Metric struct {
	Timeframe Timeframe `json:"timeframe"`

	OpenTime      int64    `json:"openTime"`
	OpenPrice     *float64 `json:"openPrice"`
	BaselinePrice *float64 `json:"baselinePrice"`
	PrevClose     *float64 `json:"prevClose"`

	ChangePercent        *float64 `json:"changePercent"`
	CloseToClosePercent  *float64 `json:"closeToClosePercent"`

	Volume   float64 `json:"volume"`
	Turnover float64 `json:"turnover"`

	UpdatedAt int64 `json:"updatedAt"`
}

// Clone returns a deep copy of the metric, safe to hand to a caller outside
// the store lock.
func (m *Metric) Clone() *Metric {
	c := *m
	if m.OpenPrice != nil {
		v := *m.OpenPrice
		c.OpenPrice = &v
	}
	if m.BaselinePrice != nil {
		v := *m.BaselinePrice
		c.BaselinePrice = &v
	}
	if m.PrevClose != nil {
		v := *m.PrevClose
		c.PrevClose = &v
	}
	if m.ChangePercent != nil {
		v := *m.ChangePercent
		c.ChangePercent = &v
	}
	if m.CloseToClosePercent != nil {
		v := *m.CloseToClosePercent
		c.CloseToClosePercent = &v
	}
	return &c
}

// Clone returns a deep copy of the entry, including its full metric set, so
// a snapshot can be read without holding the store lock.
func (e *Entry) Clone() *Entry {
	c := &Entry{
		Symbol:             e.Symbol,
		BaseCoin:           e.BaseCoin,
		QuoteCoin:          e.QuoteCoin,
		LastPriceUpdatedAt: e.LastPriceUpdatedAt,
		Metrics:            make(map[Timeframe]*Metric, len(e.Metrics)),
	}
	if e.LastPrice != nil {
		v := *e.LastPrice
		c.LastPrice = &v
	}
	for tf, m := range e.Metrics {
		c.Metrics[tf] = m.Clone()
	}
	return c
}

// Overview summarises gainers/losers for one timeframe across the universe.
type Overview struct {
	Timeframe Timeframe `json:"timeframe"`
	Gainers   int       `json:"gainers"`
	Losers    int       `json:"losers"`
}
