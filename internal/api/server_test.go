package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"OpenMCP-Forge/internal/anvil"
	"OpenMCP-Forge/internal/invoke"
	"OpenMCP-Forge/internal/tools"
)

type fakeAnvilStatusTool struct{}

func (fakeAnvilStatusTool) Name() string     { return "anvil_status" }
func (fakeAnvilStatusTool) Describe() string { return "reports the managed simulator state" }

func (fakeAnvilStatusTool) Invoke(_ context.Context, _ map[string]any) *tools.Payload {
	return &tools.Payload{
		Tool:    "anvil_status",
		Success: true,
		Anvil:   &anvil.StatusInfo{Running: true, PID: 4242, RPCURL: "http://127.0.0.1:8545"},
	}
}

type echoTool struct{}

func (echoTool) Name() string     { return "echo" }
func (echoTool) Describe() string { return "returns the supplied params" }

func (echoTool) Invoke(_ context.Context, params map[string]any) *tools.Payload {
	return &tools.Payload{Tool: "echo", Success: true, Params: params, Stdout: "done"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := tools.NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	service := invoke.NewService(invoke.NewMemoryStore(), invoke.NewMemoryQueue(4))
	return NewServer(":0", registry, service, nil)
}

func TestHandleInvokeToolSuccess(t *testing.T) {
	server := newTestServer(t)

	body := strings.NewReader(`{"message":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/echo", body)
	rec := httptest.NewRecorder()

	server.handleInvokeTool(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var payload tools.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success || payload.Stdout != "done" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Params["message"] != "hello" {
		t.Fatalf("params were not echoed: %+v", payload.Params)
	}
}

func TestHandleInvokeToolErrors(t *testing.T) {
	server := newTestServer(t)

	t.Run("unknown tool", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/missing", nil)
		rec := httptest.NewRecorder()

		server.handleInvokeTool(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		var payload tools.Payload
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if payload.Success {
			t.Fatal("unknown tool must produce a failure payload")
		}
	})

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tools/echo", nil)
		rec := httptest.NewRecorder()

		server.handleInvokeTool(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/", nil)
		rec := httptest.NewRecorder()

		server.handleInvokeTool(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/echo", strings.NewReader("{"))
		rec := httptest.NewRecorder()

		server.handleInvokeTool(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestHandleSubmitAndGetInvocation(t *testing.T) {
	server := newTestServer(t)

	body := strings.NewReader(`{"tool":"echo","params":{"message":"hi"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invocations", body)
	rec := httptest.NewRecorder()

	server.handleInvocations(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusAccepted)
	}
	var record invoke.Invocation
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.ID == "" || record.Status != invoke.StatusPending {
		t.Fatalf("unexpected invocation record: %+v", record)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/invocations/"+record.ID, nil)
	rec = httptest.NewRecorder()

	server.handleGetInvocation(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleInvocationErrors(t *testing.T) {
	server := newTestServer(t)

	t.Run("missing tool name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invocations", strings.NewReader(`{"tool":""}`))
		rec := httptest.NewRecorder()

		server.handleInvocations(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/invocations/missing", nil)
		rec := httptest.NewRecorder()

		server.handleGetInvocation(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleListTools(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()

	server.handleListTools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Tools []string `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Tools) != 1 || body.Tools[0] != "echo" {
		t.Fatalf("unexpected tool list: %v", body.Tools)
	}
}

func TestHandleAnvilStatus(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(fakeAnvilStatusTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	server := NewServer(":0", registry, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anvil/status", nil)
	rec := httptest.NewRecorder()

	server.handleAnvilStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d", rec.Code, http.StatusOK)
	}
	var payload tools.Payload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success || payload.Anvil == nil || !payload.Anvil.Running || payload.Anvil.PID != 4242 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestHandleAnvilStatusErrors(t *testing.T) {
	server := newTestServer(t)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/anvil/status", nil)
		rec := httptest.NewRecorder()

		server.handleAnvilStatus(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("tool not registered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/anvil/status", nil)
		rec := httptest.NewRecorder()

		server.handleAnvilStatus(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
