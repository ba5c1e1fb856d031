package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"autoheal/internal/healing"
)

func TestStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/executions" {
			t.Fatalf("request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("auth: %q", r.Header.Get("Authorization"))
		}
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Document != "AutoHeal-RestartService" || req.Parameters["Service"] != "api" {
			t.Fatalf("body: %#v", req)
		}
		w.Write([]byte(`{"execution_id":"exec-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", "tok", 0)
	id, err := c.Start(context.Background(), "AutoHeal-RestartService", map[string]string{"Service": "api"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if id != "exec-1" {
		t.Fatalf("id: %s", id)
	}
}

func TestStartMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	if _, err := New(srv.URL, "", 0).Start(context.Background(), "doc", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStartRequiresDocument(t *testing.T) {
	if _, err := New("http://runner", "", 0).Start(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/executions/exec-1" {
			t.Fatalf("request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"execution_id":"exec-1","status":"TimedOut"}`))
	}))
	defer srv.Close()
	status, err := New(srv.URL, "", 0).Status(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if status != healing.JobTimedOut {
		t.Fatalf("status: %s", status)
	}
	if s, done := status.Outcome(); !done || s != healing.StatusFailed {
		t.Fatalf("outcome: %s %v", s, done)
	}
}

func TestStatusHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	if _, err := New(srv.URL, "", 0).Status(context.Background(), "exec-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClientSatisfiesRunner(t *testing.T) {
	var _ healing.Runner = (*Client)(nil)
}
