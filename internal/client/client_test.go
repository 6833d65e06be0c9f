package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect-stream/backend/internal/config"
	"github.com/perfect-stream/backend/internal/mersenne"
	"github.com/perfect-stream/backend/internal/server"
	"github.com/perfect-stream/backend/internal/stream"
)

type failingProducer struct{}

func (failingProducer) Produce(ctx context.Context, req stream.Request, emit stream.EmitFunc) error {
	if err := emit(mersenne.Result{P: 2, Value: mersenne.BuildPerfectNumber(2)}); err != nil {
		return err
	}
	return errors.New("worker exploded")
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimit.RPS = 0
	srv := server.NewServer(cfg, server.Deps{External: failingProducer{}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func perfects(records []stream.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Perfect
	}
	return out
}

func TestHTTPStream(t *testing.T) {
	ts := newBackend(t)
	c := NewHTTPClient(ts.URL)

	var got []stream.Record
	err := c.Stream(context.Background(), StreamOptions{Limit: 5, BatchSize: 2}, func(r stream.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "28", "496", "8128", "33550336"}, perfects(got))
	assert.Equal(t, 13, got[4].P)
}

func TestHTTPStreamStopsOnCallbackError(t *testing.T) {
	ts := newBackend(t)
	c := NewHTTPClient(ts.URL)

	stop := errors.New("enough")
	n := 0
	err := c.Stream(context.Background(), StreamOptions{Limit: 8}, func(stream.Record) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestHTTPStreamErrorFrame(t *testing.T) {
	ts := newBackend(t)
	c := NewHTTPClient(ts.URL)

	var got []stream.Record
	err := c.Stream(context.Background(), StreamOptions{Limit: 5, Mode: "external"}, func(r stream.Record) error {
		got = append(got, r)
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Equal(t, []string{"6"}, perfects(got))
}

func TestHTTPStatusError(t *testing.T) {
	ts := newBackend(t)
	c := NewHTTPClient(ts.URL)

	err := c.Stream(context.Background(), StreamOptions{Limit: 1, Mode: "cluster"}, func(stream.Record) error { return nil })
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.Contains(t, se.Message, "unknown mode")

	_, err = c.Check(context.Background(), "-1")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
}

func TestHTTPListAndCheck(t *testing.T) {
	ts := newBackend(t)
	c := NewHTTPClient(ts.URL)
	ctx := context.Background()

	records, err := c.List(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "28", "496"}, perfects(records))

	res, err := c.Check(ctx, "33550336")
	require.NoError(t, err)
	assert.True(t, res.Perfect)
	assert.Equal(t, 13, res.Exponent)

	res, err = c.Check(ctx, "100")
	require.NoError(t, err)
	assert.False(t, res.Perfect)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestWSStream(t *testing.T) {
	ts := newBackend(t)
	c := NewWSClient(ts.URL)

	var got []stream.Record
	err := c.Stream(context.Background(), StreamOptions{Limit: 4, BatchSize: 3}, func(r stream.Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"6", "28", "496", "8128"}, perfects(got))
}

func TestWSStreamErrorFrame(t *testing.T) {
	ts := newBackend(t)
	c := NewWSClient(ts.URL)

	err := c.Stream(context.Background(), StreamOptions{Limit: 3, Mode: "external"}, func(stream.Record) error { return nil })
	assert.ErrorIs(t, err, ErrStreamFailed)
}

func TestWSStreamContextCancel(t *testing.T) {
	ts := newBackend(t)
	c := NewWSClient(ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	err := c.Stream(ctx, StreamOptions{Limit: 20}, func(stream.Record) error {
		n++
		if n == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewWSClientURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8080/ws/perfect", NewWSClient("http://127.0.0.1:8080").url)
	assert.Equal(t, "wss://example.com/ws/perfect", NewWSClient("https://example.com/").url)
}
