package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenMCP-Forge/sdk/go/forgemcp"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tools/forge_build", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(forgemcp.Payload{
			Tool:    "forge_build",
			Success: true,
			Stdout:  "Compiler run successful!",
		})
	})
	mux.HandleFunc("/api/v1/invocations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(forgemcp.Invocation{ID: "inv-demo", Tool: "forge_test", Status: "pending"})
	})
	mux.HandleFunc("/api/v1/invocations/inv-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(forgemcp.Invocation{
			ID:     "inv-demo",
			Tool:   "forge_test",
			Status: "succeeded",
			Result: &forgemcp.Payload{Tool: "forge_test", Success: true, Stdout: "Ran 12 tests: all passed"},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := forgemcp.NewClient(srv.URL, forgemcp.WithHTTPClient(srv.Client()))
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, err := client.Invoke(ctx, "forge_build", map[string]any{"project_root": "."})
	if err != nil {
		panic(err)
	}
	fmt.Printf("forge_build success=%v stdout=%s\n", payload.Success, payload.Stdout)

	record, err := client.Submit(ctx, forgemcp.SubmitRequest{Tool: "forge_test"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted invocation %s (status=%s)\n", record.ID, record.Status)

	final, err := client.WaitForInvocation(ctx, record.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("invocation %s finished: %s\n", final.ID, final.Result.Stdout)
}
