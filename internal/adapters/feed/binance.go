package feed

import (
	"context"
	"sort"
	"strings"

	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/alejandrodnm/shortsbot/internal/ports"
)

const defaultBinanceWS = "wss://stream.binance.com:9443"

// BinanceStream subscribes to the trade stream of every configured symbol.
// Subscription is encoded in the URL, so OnConnect sends nothing.
type BinanceStream struct {
	baseURL string
	assets  map[string]string // "BTCUSDT" → "BTC"
	sink    ports.PriceSink
	metrics *instrumentation.Metrics
}

// NewBinanceStream creates the handler. symbols maps exchange symbol → asset.
func NewBinanceStream(baseURL string, symbols map[string]string, sink ports.PriceSink, m *instrumentation.Metrics) *BinanceStream {
	if baseURL == "" {
		baseURL = defaultBinanceWS
	}
	assets := make(map[string]string, len(symbols))
	for sym, asset := range symbols {
		assets[strings.ToUpper(sym)] = asset
	}
	return &BinanceStream{baseURL: strings.TrimRight(baseURL, "/"), assets: assets, sink: sink, metrics: m}
}

// ID returns the worker identifier.
func (b *BinanceStream) ID() string { return SourceBinance }

// URL returns the combined stream endpoint for all symbols.
func (b *BinanceStream) URL() string {
	streams := make([]string, 0, len(b.assets))
	for sym := range b.assets {
		streams = append(streams, strings.ToLower(sym)+"@trade")
	}
	sort.Strings(streams)
	return b.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// OnConnect is a no-op for Binance.
func (b *BinanceStream) OnConnect(context.Context, *WSWorker) error { return nil }

// OnMessage parses a trade and forwards it; anything else is dropped.
func (b *BinanceStream) OnMessage(_ context.Context, msg []byte) {
	s := ParseBinanceTrade(msg)
	if s == nil {
		b.metrics.RecordFeedDropped(SourceBinance)
		return
	}
	asset, ok := b.assets[s.Symbol]
	if !ok {
		b.metrics.RecordFeedDropped(SourceBinance)
		return
	}
	b.metrics.RecordFeedMessage(SourceBinance)
	b.sink.Push(asset, s.Sample)
}
