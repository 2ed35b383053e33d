package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// newTestGateway records backoff delays instead of sleeping.
func newTestGateway(p Policy) (*Gateway, *[]time.Duration) {
	g := New(p, nil)
	var delays []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return g, &delays
}

type answer struct {
	Choices []string `json:"choices"`
}

func (a *answer) check() error {
	if len(a.Choices) == 0 {
		return errors.New("missing choices")
	}
	return nil
}

func TestGateway_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"choices": []string{"ok"}})
	}))
	defer server.Close()

	g, delays := newTestGateway(Policy{MaxRetries: 3, InitialDelay: time.Second, Timeout: time.Second})
	var out answer
	ok := g.Call(context.Background(), Request{Endpoint: server.URL, Payload: map[string]string{"q": "x"}}, &out, out.check)

	require.True(t, ok)
	assert.Equal(t, []string{"ok"}, out.Choices)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestGateway_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g, delays := newTestGateway(Policy{MaxRetries: 3, InitialDelay: time.Second, Timeout: time.Second})
	ok := g.Call(context.Background(), Request{Endpoint: server.URL}, nil, nil)

	assert.False(t, ok)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestGateway_MissingFieldIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Write([]byte(`{"unexpected": true}`))
			return
		}
		w.Write([]byte(`{"choices": ["second"]}`))
	}))
	defer server.Close()

	g, _ := newTestGateway(Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Timeout: time.Second})
	var out answer
	ok := g.Call(context.Background(), Request{Endpoint: server.URL}, &out, out.check)

	require.True(t, ok)
	assert.Equal(t, []string{"second"}, out.Choices)
}

func TestGateway_MalformedBodyIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	g, _ := newTestGateway(Policy{MaxRetries: 2, InitialDelay: time.Millisecond, Timeout: time.Second})
	var out answer
	ok := g.Call(context.Background(), Request{Endpoint: server.URL}, &out, out.check)

	assert.False(t, ok)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGateway_PerAttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	g, _ := newTestGateway(Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Timeout: 50 * time.Millisecond})
	start := time.Now()
	ok := g.Call(context.Background(), Request{Endpoint: server.URL}, nil, nil)

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestGateway_SendsHeadersAndPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["query"])
		w.Write([]byte(`{"choices": ["x"]}`))
	}))
	defer server.Close()

	g, _ := newTestGateway(DefaultPolicy())
	var out answer
	ok := g.Call(context.Background(), Request{
		Endpoint: server.URL,
		Payload:  map[string]string{"query": "hello"},
		Headers:  map[string]string{"Authorization": "Bearer k"},
	}, &out, out.check)

	assert.True(t, ok)
}

func TestGateway_DoWrapsNoResult(t *testing.T) {
	g, delays := newTestGateway(DefaultPolicy())
	attempts := 0
	err := g.Do(context.Background(), Policy{MaxRetries: 2, InitialDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return fmt.Errorf("boom %d", attempts)
	})

	assert.ErrorIs(t, err, ports.ErrNoResult)
	assert.Equal(t, 3, attempts)
	require.Len(t, *delays, 2)
	assert.Less(t, (*delays)[0], (*delays)[1])
}

func TestGateway_DoZeroDelayUsesDefault(t *testing.T) {
	g, delays := newTestGateway(Policy{MaxRetries: 1, InitialDelay: 250 * time.Millisecond, Timeout: time.Second})
	err := g.Do(context.Background(), Policy{MaxRetries: 3, Timeout: time.Second}, func(ctx context.Context) error {
		return errors.New("unavailable")
	})

	assert.ErrorIs(t, err, ports.ErrNoResult)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}, *delays)
}

func TestGateway_StopsOnCancelledContext(t *testing.T) {
	g := New(Policy{MaxRetries: 5, InitialDelay: time.Hour, Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := g.Do(ctx, g.Policy(), func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, ports.ErrNoResult)
	assert.Equal(t, 1, attempts)
}
