package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"engagement-shop/internal/config"
)

func testConfig() config.HTTPClientConfig {
	cfg := config.HTTPClientConfig{
		Timeout:       time.Second,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	}
	cfg.RateLimit.RPS = 1000
	cfg.RateLimit.Burst = 10
	return cfg
}

func TestDoRetries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantStatus   int
		wantAttempts int32
	}{
		{name: "success on first try", statuses: []int{200}, wantStatus: 200, wantAttempts: 1},
		{name: "5xx then success", statuses: []int{502, 200}, wantStatus: 200, wantAttempts: 2},
		{name: "4xx is not retried", statuses: []int{400}, wantStatus: 400, wantAttempts: 1},
		{name: "retries are capped", statuses: []int{500, 500, 500, 500}, wantStatus: 500, wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.statuses[n-1])
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			c := New("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
			resp, err := c.Do(context.Background(), "get", func(ctx context.Context) (*http.Request, error) {
				return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
			})
			if err != nil {
				t.Fatalf("Do error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New("test", testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Do(context.Background(), "get", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err == nil {
		t.Fatal("expected error for unreachable upstream")
	}
}

func TestDoOnceDoesNotRetry(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "5xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			cfg := testConfig()
			cfg.Timeout = 50 * time.Millisecond
			c := New("test", cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

			_, err := c.DoOnce(context.Background(), "add", func(ctx context.Context) (*http.Request, error) {
				return http.NewRequestWithContext(ctx, http.MethodPost, srv.URL, nil)
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("DoOnce error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&attempts); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}
