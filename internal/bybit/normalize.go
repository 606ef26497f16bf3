package bybit

import "strconv"

// parseFloat accepts both string- and already-numeric-looking inputs, since
// upstream numerics arrive as strings on both REST and WS payloads.
func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

func parseIntOrZero(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
