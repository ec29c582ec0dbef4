package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Request-ID") != "abc" {
			t.Errorf("missing request id header")
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]string{"echo": in["patient_id"]})
	}))
	defer srv.Close()

	var out map[string]string
	h := http.Header{"X-Request-ID": {"abc"}}
	err := DoJSON(context.Background(), nil, http.MethodPost, srv.URL, h, map[string]string{"patient_id": "p1"}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out["echo"] != "p1" {
		t.Errorf("reply: %v", out)
	}
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	err := DoJSON(context.Background(), NewClient(DefaultTimeout), http.MethodGet, srv.URL, nil, nil, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound || se.Body != `{"error":"session not found"}` {
		t.Errorf("status error: %+v", se)
	}
}
