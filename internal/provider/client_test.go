package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/metrics"
	"github.com/pagalshaikh9912-create/smm-panel-full-stack/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newProvider(url string) model.Provider {
	return model.Provider{ID: 1, Name: "upstream", APIURL: url, APIKey: "secret", Status: model.ServiceActive}
}

func TestAddOrder_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("key") != "secret" || r.PostForm.Get("action") != "add" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		if r.PostForm.Get("service") != "15" || r.PostForm.Get("quantity") != "1000" || r.PostForm.Get("link") != "https://x.com/a" {
			t.Errorf("unexpected order params: %v", r.PostForm)
		}
		json.NewEncoder(w).Encode(map[string]any{"order": 23501})
	}))
	defer ts.Close()

	m := metrics.New()
	client := NewClient(time.Second, m)

	id, err := client.AddOrder(context.Background(), newProvider(ts.URL), "15", "https://x.com/a", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "23501" {
		t.Errorf("expected provider order 23501, got %s", id)
	}
	if n := testutil.CollectAndCount(m.Registry(), "smm_panel_provider_requests_total"); n != 1 {
		t.Errorf("expected one recorded request series, got %d", n)
	}
}

func TestAddOrder_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "Not enough funds on balance"})
	}))
	defer ts.Close()

	client := NewClient(time.Second, nil)

	_, err := client.AddOrder(context.Background(), newProvider(ts.URL), "15", "x", 10)
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got %v", err)
	}
}

func TestStatus_Partial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("action") != "status" || r.PostForm.Get("order") != "23501" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Write([]byte(`{"charge":"0.27819","start_count":"3572","status":"Partial","remains":"157","currency":"USD"}`))
	}))
	defer ts.Close()

	client := NewClient(time.Second, nil)

	status, err := client.Status(context.Background(), newProvider(ts.URL), "23501")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Progress.Status != model.Partial {
		t.Errorf("expected status %s, got %s", model.Partial, status.Progress.Status)
	}
	if status.Progress.StartCount == nil || *status.Progress.StartCount != 3572 {
		t.Errorf("expected start count 3572, got %v", status.Progress.StartCount)
	}
	if status.Progress.Remains == nil || *status.Progress.Remains != 157 {
		t.Errorf("expected remains 157, got %v", status.Progress.Remains)
	}
}

func TestStatus_Mapping(t *testing.T) {
	tests := []struct {
		reported string
		want     model.OrderStatus
		canceled bool
		wantErr  bool
	}{
		{"Pending", model.Pending, false, false},
		{"In progress", model.Processing, false, false},
		{"Completed", model.Completed, false, false},
		{"Partial", model.Partial, false, false},
		{"Canceled", "", true, false},
		{"Exploded", "", false, true},
	}

	for _, tt := range tests {
		got, err := mapStatus(tt.reported)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: unexpected error %v", tt.reported, err)
			continue
		}
		if got.Progress.Status != tt.want || got.Canceled != tt.canceled {
			t.Errorf("%s: got %+v", tt.reported, got)
		}
	}
}

func TestStatus_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(time.Second, nil)

	_, err := client.Status(context.Background(), newProvider(ts.URL), "1")
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter != 3*time.Second {
		t.Errorf("expected 3s, got %s", limited.RetryAfter)
	}
}

func TestStatus_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	m := metrics.New()
	client := NewClient(time.Second, m)

	if _, err := client.Status(context.Background(), newProvider(ts.URL), "1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if n := testutil.CollectAndCount(m.Registry(), "smm_panel_provider_requests_total"); n != 1 {
		t.Errorf("expected one recorded request series, got %d", n)
	}
}
