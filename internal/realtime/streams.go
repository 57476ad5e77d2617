package realtime

// Named realtime streams used across the dashboard.
const (
	StreamPrices    = "prices"
	StreamMarkets   = "markets"
	StreamSentiment = "sentiment"
	StreamNews      = "news"
)

// DefaultStreams is the subscription applied when a client connects without
// naming any streams.
var DefaultStreams = []string{StreamPrices}
