package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/resilience"
)

func testOptions(url string) Options {
	opts := DefaultOptions("test", url)
	opts.Retries = 0
	opts.Timeout = 2 * time.Second
	return opts
}

func TestGetJSONSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "/api/v1/extensions", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	opts := testOptions(srv.URL + "/api/v1/")
	opts.Token = "tkn"
	opts.APIKey = "key"
	c := New(opts)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/extensions", &out))
	assert.True(t, out.OK)
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testOptions(srv.URL))
	err := c.SendJSON(context.Background(), http.MethodPost, "/extensions/user/x", map[string]string{"a": "b"}, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	// 4xx is the caller's fault and must not count against the breaker
	assert.Equal(t, uint32(0), c.Breaker.Counts().TotalFailures)
}

func TestServerErrorsTripBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Breaker = resilience.New("test", resilience.Settings{
		Timeout:      time.Minute,
		ReadyToTrip:  func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 2 },
		IsSuccessful: ClientFault,
	})
	c := New(opts)

	for i := 0; i < 2; i++ {
		assert.Error(t, c.GetJSON(context.Background(), "/", &struct{}{}))
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	err := c.GetJSON(context.Background(), "/", &struct{}{})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDecodeJSONRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testOptions(srv.URL))
	assert.Error(t, c.GetJSON(context.Background(), "/", &struct{}{}))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	opts := testOptions("http://127.0.0.1:1")
	opts.RPS = 0.001
	c := New(opts)

	// First token is available, second would wait far longer than the deadline
	_, err := c.Request(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Request(ctx)
	assert.Error(t, err)
}
