package feed

// rest.go — poller REST de respaldo (Binance /api/v3/ticker/price).
//
// Mantiene vivo el oráculo cuando los websockets están caídos. Usa el mismo
// esquema que el resto de clientes HTTP: rate limiter token bucket + retries
// con backoff exponencial.

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/alejandrodnm/shortsbot/internal/ports"
	"golang.org/x/time/rate"
)

const (
	defaultRESTBase = "https://api.binance.com"
	tickerPath      = "/api/v3/ticker/price"

	// /ticker/price con varios símbolos pesa 4; 6000/min → usamos ~10% del límite
	restRatePerSec = 2

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// RESTPoller consulta periódicamente el precio de todos los símbolos.
type RESTPoller struct {
	http    *http.Client
	base    string
	assets  map[string]string // "BTCUSDT" → "BTC"
	limiter *rate.Limiter
	sink    ports.PriceSink
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewRESTPoller crea el poller. Si base está vacío usa la URL de producción.
func NewRESTPoller(base string, symbols map[string]string, sink ports.PriceSink, m *instrumentation.Metrics) *RESTPoller {
	if base == "" {
		base = defaultRESTBase
	}
	assets := make(map[string]string, len(symbols))
	for sym, asset := range symbols {
		assets[strings.ToUpper(sym)] = asset
	}
	return &RESTPoller{
		http:    &http.Client{Timeout: 5 * time.Second},
		base:    strings.TrimRight(base, "/"),
		assets:  assets,
		limiter: rate.NewLimiter(restRatePerSec, 2),
		sink:    sink,
		metrics: m,
		now:     time.Now,
	}
}

// Run hace PollOnce cada interval hasta que ctx se cancele.
func (p *RESTPoller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("feed: rest poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce hace un request y empuja los precios al sink.
// Devuelve cuántas muestras se publicaron.
func (p *RESTPoller) PollOnce(ctx context.Context) (int, error) {
	symbols := make([]string, 0, len(p.assets))
	for s := range p.assets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	enc, err := json.Marshal(symbols)
	if err != nil {
		return 0, fmt.Errorf("feed.PollOnce: marshal symbols: %w", err)
	}
	u := p.base + tickerPath + "?symbols=" + url.QueryEscape(string(enc))

	body, err := p.getWithRetry(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("feed.PollOnce: %w", err)
	}

	samples := ParseRESTTickers(body, p.now())
	if samples == nil {
		p.metrics.RecordFeedDropped(SourceREST)
		return 0, fmt.Errorf("feed.PollOnce: unexpected body")
	}
	n := 0
	for _, s := range samples {
		asset, ok := p.assets[s.Symbol]
		if !ok {
			continue
		}
		p.metrics.RecordFeedMessage(SourceREST)
		p.sink.Push(asset, s.Sample)
		n++
	}
	return n, nil
}

// getWithRetry hace un GET con rate limiting y backoff exponencial.
func (p *RESTPoller) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			p.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			p.sleep(ctx, attempt)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (p *RESTPoller) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
