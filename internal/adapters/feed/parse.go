package feed

// parse.go — frontera estricta con los payloads upstream.
//
// Cada función acepta exactamente un schema y devuelve una muestra tipada o
// nil. Nada fuera de este archivo conoce la forma de los mensajes.

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

const (
	SourceBinance  = "binance"
	SourceCoinbase = "coinbase"
	SourceREST     = "rest"
	SourceSim      = "sim"
)

// SymbolSample es una muestra etiquetada con el símbolo del exchange.
type SymbolSample struct {
	Symbol string
	Sample domain.PriceSample
}

// binanceTrade es el evento "trade" del stream de Binance.
//
// encoding/json cae a match case-insensitive si no hay tag exacto: "E" y "t"
// necesitan su propio campo o acaban en Event y TradeTime.
type binanceTrade struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	TradeID   int64  `json:"t"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// binanceCombined es el envoltorio de /stream?streams=...
type binanceCombined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseBinanceTrade acepta un evento trade, plano o dentro del envoltorio
// combinado. Devuelve nil si el mensaje no es un trade válido.
func ParseBinanceTrade(msg []byte) *SymbolSample {
	var wrapped binanceCombined
	if err := json.Unmarshal(msg, &wrapped); err == nil && wrapped.Stream != "" && len(wrapped.Data) > 0 {
		msg = wrapped.Data
	}

	var t binanceTrade
	if err := json.Unmarshal(msg, &t); err != nil {
		return nil
	}
	if t.Event != "trade" || t.Symbol == "" || t.TradeTime <= 0 {
		return nil
	}
	price, ok := parsePrice(t.Price)
	if !ok {
		return nil
	}
	return &SymbolSample{
		Symbol: strings.ToUpper(t.Symbol),
		Sample: domain.PriceSample{
			Price:     price,
			Timestamp: time.UnixMilli(t.TradeTime).UTC(),
			Source:    SourceBinance,
		},
	}
}

// coinbaseTicker es el mensaje del canal "ticker" de Coinbase Exchange.
type coinbaseTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Time      string `json:"time"`
}

// ParseCoinbaseTicker acepta un mensaje type=ticker. Suscripciones,
// heartbeats y errores devuelven nil.
func ParseCoinbaseTicker(msg []byte) *SymbolSample {
	var t coinbaseTicker
	if err := json.Unmarshal(msg, &t); err != nil {
		return nil
	}
	if t.Type != "ticker" || t.ProductID == "" {
		return nil
	}
	price, ok := parsePrice(t.Price)
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, t.Time)
	if err != nil {
		return nil
	}
	return &SymbolSample{
		Symbol: strings.ToUpper(t.ProductID),
		Sample: domain.PriceSample{
			Price:     price,
			Timestamp: ts.UTC(),
			Source:    SourceCoinbase,
		},
	}
}

// restTicker es un elemento de GET /api/v3/ticker/price.
type restTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// ParseRESTTickers acepta el array de /api/v3/ticker/price. Los elementos
// malformados se saltan; un body que no es array devuelve nil.
func ParseRESTTickers(body []byte, at time.Time) []SymbolSample {
	var raw []restTicker
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	out := make([]SymbolSample, 0, len(raw))
	for _, r := range raw {
		price, ok := parsePrice(r.Price)
		if !ok || r.Symbol == "" {
			continue
		}
		out = append(out, SymbolSample{
			Symbol: strings.ToUpper(r.Symbol),
			Sample: domain.PriceSample{Price: price, Timestamp: at.UTC(), Source: SourceREST},
		})
	}
	return out
}

func parsePrice(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
