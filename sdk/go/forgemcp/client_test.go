package forgemcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInvokeReturnsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools/forge_build" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var params map[string]any
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if params["project_root"] != "/tmp/demo" {
			t.Fatalf("params not forwarded: %v", params)
		}
		_ = json.NewEncoder(w).Encode(Payload{
			Tool:    "forge_build",
			Success: true,
			Stdout:  "Compiler run successful",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	payload, err := client.Invoke(context.Background(), "forge_build", map[string]any{"project_root": "/tmp/demo"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !payload.Success || payload.Stdout != "Compiler run successful" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestInvokeSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sdk-token" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(Payload{Tool: "anvil_status", Success: true})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithToken("sdk-token"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.AnvilStatus(context.Background()); err != nil {
		t.Fatalf("anvil status: %v", err)
	}
}

func TestSubmitAndWaitForInvocation(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/invocations" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Invocation{ID: "inv-1", Tool: "forge_test", Status: "pending"})
		case r.URL.Path == "/api/v1/invocations/inv-1" && r.Method == http.MethodGet:
			polls++
			status := "running"
			if polls >= 2 {
				status = "succeeded"
			}
			_ = json.NewEncoder(w).Encode(Invocation{
				ID:     "inv-1",
				Tool:   "forge_test",
				Status: status,
				Result: &Payload{Tool: "forge_test", Success: true},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	record, err := client.Submit(context.Background(), SubmitRequest{Tool: "forge_test"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.ID != "inv-1" || record.Status != "pending" {
		t.Fatalf("unexpected record: %+v", record)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := client.WaitForInvocation(ctx, "inv-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != "succeeded" || final.Result == nil {
		t.Fatalf("unexpected final record: %+v", final)
	}
	if polls < 2 {
		t.Fatalf("expected at least two polls, got %d", polls)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "tool name must not be empty",
			"code":  "INVOCATION_VALIDATION_FAILED",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Submit(context.Background(), SubmitRequest{Tool: ""})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "INVOCATION_VALIDATION_FAILED" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestAnvilStatusUsesStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/anvil/status" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Payload{
			Tool:    "anvil_status",
			Success: true,
			Anvil:   &AnvilStatus{Running: true, PID: 4242},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	payload, err := client.AnvilStatus(context.Background())
	if err != nil {
		t.Fatalf("anvil status: %v", err)
	}
	if payload.Anvil == nil || !payload.Anvil.Running || payload.Anvil.PID != 4242 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
