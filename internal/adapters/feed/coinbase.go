package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/alejandrodnm/shortsbot/internal/ports"
)

const defaultCoinbaseWS = "wss://ws-feed.exchange.coinbase.com"

// CoinbaseStream subscribes to the ticker channel for every asset as {ASSET}-USD.
type CoinbaseStream struct {
	url     string
	assets  map[string]string // "BTC-USD" → "BTC"
	sink    ports.PriceSink
	metrics *instrumentation.Metrics
}

// NewCoinbaseStream creates the handler for the given assets.
func NewCoinbaseStream(url string, assets []string, sink ports.PriceSink, m *instrumentation.Metrics) *CoinbaseStream {
	if url == "" {
		url = defaultCoinbaseWS
	}
	products := make(map[string]string, len(assets))
	for _, a := range assets {
		products[strings.ToUpper(a)+"-USD"] = a
	}
	return &CoinbaseStream{url: url, assets: products, sink: sink, metrics: m}
}

// ID returns the worker identifier.
func (c *CoinbaseStream) ID() string { return SourceCoinbase }

// URL returns the feed endpoint.
func (c *CoinbaseStream) URL() string { return c.url }

type coinbaseSubscribe struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// OnConnect sends the ticker subscription.
func (c *CoinbaseStream) OnConnect(_ context.Context, w *WSWorker) error {
	products := make([]string, 0, len(c.assets))
	for p := range c.assets {
		products = append(products, p)
	}
	sort.Strings(products)
	b, err := json.Marshal(coinbaseSubscribe{Type: "subscribe", ProductIDs: products, Channels: []string{"ticker"}})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.Write(b)
}

// OnMessage parses a ticker and forwards it; anything else is dropped.
func (c *CoinbaseStream) OnMessage(_ context.Context, msg []byte) {
	s := ParseCoinbaseTicker(msg)
	if s == nil {
		c.metrics.RecordFeedDropped(SourceCoinbase)
		return
	}
	asset, ok := c.assets[s.Symbol]
	if !ok {
		c.metrics.RecordFeedDropped(SourceCoinbase)
		return
	}
	c.metrics.RecordFeedMessage(SourceCoinbase)
	c.sink.Push(asset, s.Sample)
}
