package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/eduanalytics/caaspp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, retries int) *Client {
	t.Helper()
	return New(Config{
		Timeout:    2 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	}, testutil.NewTestLogger(t))
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name      string
		failures  int // responses with status before succeeding
		status    int
		retries   int
		wantCalls int32
		wantErr   bool
		wantCode  int
	}{
		{name: "success first try", failures: 0, retries: 2, wantCalls: 1},
		{name: "recovers from 503", failures: 2, status: http.StatusServiceUnavailable, retries: 2, wantCalls: 3},
		{name: "retry budget exhausted", failures: 5, status: http.StatusBadGateway, retries: 2, wantCalls: 3, wantErr: true, wantCode: http.StatusBadGateway},
		{name: "404 not retried", failures: 5, status: http.StatusNotFound, retries: 2, wantCalls: 1, wantErr: true, wantCode: http.StatusNotFound},
		{name: "429 retried", failures: 1, status: http.StatusTooManyRequests, retries: 1, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
				if int(n) <= tt.failures {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte("payload"))
			}))
			defer srv.Close()

			body, err := newTestClient(t, tt.retries).Fetch(context.Background(), srv.URL)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr {
				require.Error(t, err)
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantCode, se.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "payload", string(body))
		})
	}
}

func TestFetchEmptyBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body, err := newTestClient(t, 3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{Timeout: 50 * time.Millisecond, Retries: 1, RetryDelay: time.Millisecond}, nil)
	body, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, 3).Fetch(ctx, srv.URL)
	assert.Error(t, err)
}

func TestFetchAttempts(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	refused := closed.URL
	closed.Close()

	tests := []struct {
		name         string
		url          string
		wantAttempts string
	}{
		{name: "unsupported scheme", url: "ftp://example.invalid/file.zip", wantAttempts: "after 1 attempt(s)"},
		{name: "malformed url", url: "http://[::1", wantAttempts: "after 1 attempt(s)"},
		{name: "connection refused", url: refused, wantAttempts: "after 3 attempt(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, 2).Fetch(context.Background(), tt.url)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantAttempts)
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	wrap := func(err error) error {
		return &url.Error{Op: "Get", URL: "http://x", Err: err}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "5xx", err: &StatusError{StatusCode: 502}, want: true},
		{name: "4xx", err: &StatusError{StatusCode: 404}, want: false},
		{name: "timeout", err: wrap(timeoutError{}), want: true},
		{name: "reset", err: wrap(&net.OpError{Op: "read", Err: syscall.ECONNRESET}), want: true},
		{name: "refused", err: wrap(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}), want: true},
		{name: "truncated body", err: fmt.Errorf("failed to read body: %w", io.ErrUnexpectedEOF), want: true},
		{name: "unsupported scheme", err: wrap(errors.New(`unsupported protocol scheme "ftp"`)), want: false},
		{name: "dns failure", err: wrap(&net.DNSError{Err: "no such host", Name: "x", IsNotFound: true}), want: false},
		{name: "canceled", err: wrap(context.Canceled), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{Retries: -1}, nil)
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	assert.Equal(t, 0, c.cfg.Retries)
	assert.Equal(t, DefaultRetryDelay, c.cfg.RetryDelay)
	assert.Equal(t, DefaultUserAgent, c.cfg.UserAgent)
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 500}).Temporary())
	assert.True(t, (&StatusError{StatusCode: 429}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 403}).Temporary())
	assert.Contains(t, (&StatusError{URL: "http://x", StatusCode: 404}).Error(), "404")
}
