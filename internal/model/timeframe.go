package model

// Timeframe is a fixed candle period tracked per symbol.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Timeframes is the canonical order used everywhere a slice (not a map) of
// timeframes is exported — overview rows, index bootstrapping, cold-start
// fan-out.
var Timeframes = []Timeframe{M1, M5, M15, H1, H4, D1}

var intervalCodes = map[Timeframe]string{
	M1:  "1",
	M5:  "5",
	M15: "15",
	H1:  "60",
	H4:  "240",
	D1:  "D",
}

var codeToTimeframe = map[string]Timeframe{
	"1":   M1,
	"5":   M5,
	"15":  M15,
	"60":  H1,
	"240": H4,
	"D":   D1,
}

// IntervalCode returns the upstream interval string for this timeframe
// (e.g. "60" for H1, "D" for D1).
func (tf Timeframe) IntervalCode() string {
	return intervalCodes[tf]
}

// TimeframeFromInterval maps an upstream interval code back to a Timeframe.
// The second return value is false for any interval this service does not
// track (spec.md §4.3: "drop on unknown").
func TimeframeFromInterval(code string) (Timeframe, bool) {
	tf, ok := codeToTimeframe[code]
	return tf, ok
}
