package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/shortsbot/internal/adapters/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTPoller_PollOnce(t *testing.T) {
	var gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		gotSymbols = r.URL.Query().Get("symbols")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"64000.12"},{"symbol":"ETHUSDT","price":"3100.5"},{"symbol":"DOGEUSDT","price":"0.1"}]`))
	}))
	defer srv.Close()

	sink := newRecordingSink()
	p := feed.NewRESTPoller(srv.URL, map[string]string{"btcusdt": "BTC", "ETHUSDT": "ETH"}, sink, nil)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n, "símbolos no configurados se ignoran")
	assert.Equal(t, `["BTCUSDT","ETHUSDT"]`, gotSymbols)

	btc := sink.get("BTC")
	require.Len(t, btc, 1)
	assert.Equal(t, 64000.12, btc[0].Price)
	assert.Equal(t, feed.SourceREST, btc[0].Source)
	assert.False(t, btc[0].Timestamp.IsZero())
	assert.Len(t, sink.get("ETH"), 1)
}

func TestRESTPoller_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"1.5"}]`))
	}))
	defer srv.Close()

	sink := newRecordingSink()
	p := feed.NewRESTPoller(srv.URL, map[string]string{"BTCUSDT": "BTC"}, sink, nil)

	n, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRESTPoller_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	p := feed.NewRESTPoller(srv.URL, map[string]string{"NOPE": "X"}, newRecordingSink(), nil)

	_, err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRESTPoller_UnexpectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	p := feed.NewRESTPoller(srv.URL, map[string]string{"BTCUSDT": "BTC"}, newRecordingSink(), nil)
	_, err := p.PollOnce(context.Background())
	assert.Error(t, err)
}
