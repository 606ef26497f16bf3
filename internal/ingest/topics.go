// Package ingest runs the pool of upstream websocket workers that turn
// Bybit ticker and kline frames into State Store mutations.
package ingest

import (
	"trading-systemv1/internal/bybit"
	"trading-systemv1/internal/model"
)

// MaxTopicsPerConnection bounds how many subscriptions one upstream
// connection carries; the universe is partitioned into buckets no larger
// than this.
const MaxTopicsPerConnection = 200

// BuildTopics returns the full topic universe for symbols: one tickers.*
// topic and one kline.<interval>.* topic per timeframe, for every symbol.
func BuildTopics(symbols []string) []string {
	topics := make([]string, 0, len(symbols)*(1+len(model.Timeframes)))
	for _, s := range symbols {
		topics = append(topics, bybit.TickerTopic(s))
		for _, tf := range model.Timeframes {
			topics = append(topics, bybit.KlineTopic(tf, s))
		}
	}
	return topics
}

// Partition splits topics into buckets of at most maxPerBucket, preserving
// order. One ingestion worker owns each bucket.
func Partition(topics []string, maxPerBucket int) [][]string {
	if maxPerBucket <= 0 {
		maxPerBucket = MaxTopicsPerConnection
	}
	var buckets [][]string
	for len(topics) > 0 {
		n := maxPerBucket
		if n > len(topics) {
			n = len(topics)
		}
		buckets = append(buckets, topics[:n])
		topics = topics[n:]
	}
	return buckets
}
