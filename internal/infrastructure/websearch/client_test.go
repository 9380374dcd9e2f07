package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

func TestSearchSendsQueryAndAuth(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Offshore wind in Sweden","url":"https://example.org/wind","snippet":"Overview"},
			{"title":"Duplicate","url":"https://example.org/wind","snippet":"dup"},
			{"title":"","url":"","snippet":"no url"},
			{"title":"Grid storage","url":"https://example.org/storage","content":"Batteries"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, APIKey: "secret"}, nil, nil, nil)
	results, err := client.Search(context.Background(), "offshore wind", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got.Query != "offshore wind" || got.MaxResults != 3 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(results) != 2 {
		t.Fatalf("expected dedup and url filtering to leave 2 results, got %+v", results)
	}
	if results[1].Snippet != "Batteries" {
		t.Fatalf("expected content to fill the snippet, got %+v", results[1])
	}
}

func TestSearchDerivesMissingTitlesWithoutEnricher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"url":"https://www.energy.example.com/reports/heat-pumps_2024.pdf"}]}`))
	}))
	defer server.Close()

	results, err := NewClient(Config{URL: server.URL}, nil, nil, nil).Search(context.Background(), "heat pumps", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results[0].Title != "heat pumps 2024 - energy.example.com" {
		t.Fatalf("unexpected derived title %q", results[0].Title)
	}
}

func TestSearchIsBoundedByTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(Config{URL: server.URL, Timeout: 50 * time.Millisecond}, nil, nil, nil).Search(context.Background(), "q", 1)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("search was not bounded by its timeout")
	}
}

func TestSearchServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(Config{URL: server.URL}, nil, nil, nil).Search(context.Background(), "q", 1)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	_, err := NewClient(Config{URL: "http://unused"}, nil, nil, nil).Search(context.Background(), "  ", 1)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
