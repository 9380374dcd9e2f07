package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/config"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(t, config.Config{
		ChatContextThreshold: 0.45,
		APIRateLimitRPS:      1,
		APIRateLimitBurst:    1,
	}, testServices())

	res1 := postJSON(handler, "/v1/search", `{"query":"BECCS"}`)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d: %s", res1.Code, res1.Body.String())
	}

	res2 := postJSON(handler, "/v1/search", `{"query":"BECCS"}`)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestRateLimitDoesNotApplyToHealthz(t *testing.T) {
	handler := newTestHandler(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, testServices())

	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("healthz %d expected 200, got %d", i, res.Code)
		}
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	var rejected []string

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond, func(reason string) {
		rejected = append(rejected, reason)
	})

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if msg, _ := resp["error"].(string); !strings.Contains(msg, "overloaded") {
		t.Fatalf("expected overload error message in response, got %v", resp["error"])
	}
	if len(rejected) != 1 || rejected[0] != rejectReasonBackpressure {
		t.Fatalf("expected one backpressure rejection, got %v", rejected)
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestBackpressureWaitsForFreedSlot(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			close(started)
			<-release
		}
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, time.Second, nil)

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat", nil))
		close(done)
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/chat", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected waiting request to succeed, got %d", res.Code)
	}
	<-done
}

func TestTrafficControlDisabledByDefault(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := rateLimitMiddleware(backpressureMiddleware(base, 0, 0, nil), 0, 0, nil)

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/search", nil))
		if res.Code != http.StatusNoContent {
			t.Fatalf("request %d expected 204, got %d", i, res.Code)
		}
	}
}
