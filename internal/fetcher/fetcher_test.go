package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestParsePattern(t *testing.T) {
	values, err := ParsePattern(" 40, 50.5 ,,82.7")
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}
	if len(values) != 3 || !values[1].Equal(decimal.RequireFromString("50.5")) {
		t.Fatalf("unexpected values %v", values)
	}

	for _, bad := range []string{"", " , ", "40,abc"} {
		if _, err := ParsePattern(bad); err == nil {
			t.Fatalf("pattern %q should be rejected", bad)
		}
	}
}

func TestDemoCyclesByMinute(t *testing.T) {
	demo, err := NewDemo("40,50,82.7")
	if err != nil {
		t.Fatalf("NewDemo: %v", err)
	}

	want := map[int]string{0: "40", 1: "50", 2: "82.7", 3: "40", 59: "82.7"}
	for minute, expected := range want {
		now := time.Date(2026, 10, 16, 14, minute, 30, 0, time.UTC)
		demo.WithClock(func() time.Time { return now })

		s, err := demo.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if !s.Percentage.Equal(decimal.RequireFromString(expected)) {
			t.Fatalf("minute %d: expected %s got %s", minute, expected, s.Percentage)
		}
		if !s.ObservedAt.Equal(now) {
			t.Fatalf("observed_at should come from the clock")
		}
	}
}

func TestDemoCancelledContext(t *testing.T) {
	demo, _ := NewDemo("1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := demo.Fetch(ctx); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestHTTPFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"percentage": 82.7, "observed_at": "2026-10-16T14:00:00-03:00"}`))
	}))
	defer srv.Close()

	h := NewHTTP(HTTPOptions{URL: srv.URL, Token: "secret", Timeout: time.Second, UserAgent: "test"}, noopLogger())
	s, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !s.Percentage.Equal(decimal.RequireFromString("82.7")) {
		t.Fatalf("unexpected percentage %s", s.Percentage)
	}
	if !s.ObservedAt.Equal(time.Date(2026, 10, 16, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected observed_at %s", s.ObservedAt)
	}
}

func TestHTTPFetchStringPercentage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"percentage": "41.25"})
	}))
	defer srv.Close()

	s, err := NewHTTP(HTTPOptions{URL: srv.URL}, noopLogger()).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Percentage.StringFixed(2) != "41.25" {
		t.Fatalf("unexpected percentage %s", s.Percentage)
	}
	if s.ObservedAt.IsZero() {
		t.Fatal("observed_at should default to now")
	}
}

func TestHTTPFetchErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream down"})
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
		"missing": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"value": 3}`))
		},
		"negative": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"percentage": -1}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := NewHTTP(HTTPOptions{URL: srv.URL, Timeout: time.Second}, noopLogger()).Fetch(context.Background())
			if !errors.Is(err, ErrRetrieval) {
				t.Fatalf("expected ErrRetrieval, got %v", err)
			}
		})
	}
}

func TestHTTPFetchNoURL(t *testing.T) {
	if _, err := NewHTTP(HTTPOptions{}, noopLogger()).Fetch(context.Background()); !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	s, err := Static(decimal.NewFromInt(7)).Fetch(context.Background())
	if err != nil || !s.Percentage.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected sample %v %v", s, err)
	}
}
