package bybit

import (
	"testing"

	"trading-systemv1/internal/model"
)

func TestParseFrame_Ticker(t *testing.T) {
	raw := []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"65000.5"}}`)
	got, ok := ParseFrame(raw)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if !got.HasTicker || got.Symbol != "BTCUSDT" || got.LastPrice != 65000.5 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseFrame_Kline(t *testing.T) {
	raw := []byte(`{"topic":"kline.60.ETHUSDT","type":"snapshot","data":[{"start":1690000000000,"open":"100","high":"110","low":"95","close":"108","volume":"12.5","turnover":"1300","confirm":true}]}`)
	got, ok := ParseFrame(raw)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if !got.HasKline || got.Symbol != "ETHUSDT" || got.Timeframe != model.H1 {
		t.Fatalf("got %+v", got)
	}
	if !got.Confirmed || got.Candle.Close != 108 {
		t.Fatalf("candle: %+v", got.Candle)
	}
}

func TestParseFrame_UnknownInterval_Dropped(t *testing.T) {
	raw := []byte(`{"topic":"kline.3.ETHUSDT","data":[{"start":1,"open":"1","high":"1","low":"1","close":"1","volume":"1","turnover":"1","confirm":false}]}`)
	if _, ok := ParseFrame(raw); ok {
		t.Fatalf("expected unknown interval to be dropped")
	}
}

func TestParseFrame_ControlFrame_Dropped(t *testing.T) {
	raw := []byte(`{"op":"pong","success":true}`)
	if _, ok := ParseFrame(raw); ok {
		t.Fatalf("expected control frame to be dropped")
	}
}

func TestParseFrame_MalformedJSON_Dropped(t *testing.T) {
	if _, ok := ParseFrame([]byte(`not json`)); ok {
		t.Fatalf("expected malformed JSON to be dropped")
	}
}

func TestParseFrame_BadNumeric_Dropped(t *testing.T) {
	raw := []byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","lastPrice":"not-a-number"}}`)
	if _, ok := ParseFrame(raw); ok {
		t.Fatalf("expected bad numeric field to be dropped")
	}
}

func TestTopicBuilders(t *testing.T) {
	if got := TickerTopic("BTCUSDT"); got != "tickers.BTCUSDT" {
		t.Fatalf("got %q", got)
	}
	if got := KlineTopic(model.D1, "BTCUSDT"); got != "kline.D.BTCUSDT" {
		t.Fatalf("got %q", got)
	}
}
