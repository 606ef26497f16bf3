package ingest

import "testing"

func TestBuildTopics(t *testing.T) {
	topics := BuildTopics([]string{"BTCUSDT"})
	// 1 ticker topic + 6 kline topics (one per timeframe)
	if len(topics) != 7 {
		t.Fatalf("got %d topics, want 7", len(topics))
	}
	if topics[0] != "tickers.BTCUSDT" {
		t.Fatalf("first topic: got %q", topics[0])
	}
}

func TestPartition_RespectsMaxBucketSize(t *testing.T) {
	topics := make([]string, 450)
	for i := range topics {
		topics[i] = "t"
	}
	buckets := Partition(topics, 200)
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	if len(buckets[0]) != 200 || len(buckets[1]) != 200 || len(buckets[2]) != 50 {
		t.Fatalf("bucket sizes: %d/%d/%d", len(buckets[0]), len(buckets[1]), len(buckets[2]))
	}
}

func TestPartition_Empty(t *testing.T) {
	if got := Partition(nil, 200); len(got) != 0 {
		t.Fatalf("expected no buckets for empty input, got %d", len(got))
	}
}
