package bybit

import "testing"

func TestParseKlineRow(t *testing.T) {
	row := []string{"1690000000000", "100", "110", "95", "108", "12.5", "1300"}
	c, ok := parseKlineRow(row)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if c.Start != 1690000000000 || c.Open != 100 || c.Close != 108 {
		t.Fatalf("got %+v", c)
	}
}

func TestParseKlineRow_ShortRow(t *testing.T) {
	if _, ok := parseKlineRow([]string{"1", "2"}); ok {
		t.Fatalf("expected short row to be rejected")
	}
}

func TestParseKlineRow_BadNumeric(t *testing.T) {
	row := []string{"1690000000000", "bad", "110", "95", "108", "12.5", "1300"}
	if _, ok := parseKlineRow(row); ok {
		t.Fatalf("expected bad numeric to be rejected")
	}
}
