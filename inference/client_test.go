package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// chatCompletionStub returns a test server speaking just enough of the
// OpenAI chat completions API.
func chatCompletionStub(t *testing.T, reply string, status int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status != http.StatusOK {
			http.Error(w, "backend unavailable", status)
			return
		}

		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "llava:7b" {
			t.Errorf("model = %v, want llava:7b", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "llava:7b",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": reply,
				},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("NewClient accepted empty model")
	}
	client, err := NewClient(ClientConfig{Model: "llava:7b"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.maxTokens < 1 {
		t.Error("maxTokens not defaulted")
	}
}

func TestInferReturnsTrimmedText(t *testing.T) {
	server, calls := chatCompletionStub(t, "  A person at a desk.\n", http.StatusOK)
	client, err := NewClient(ClientConfig{
		Model:   "llava:7b",
		APIBase: server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	text, err := client.Infer(context.Background(), []byte{0xff, 0xd8, 0xff}, "describe")
	if err != nil {
		t.Fatalf("Infer() error = %v", err)
	}
	if text != "A person at a desk." {
		t.Errorf("Infer() = %q, want trimmed text", text)
	}
	if calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", calls.Load())
	}
}

func TestInferBackendErrorPropagates(t *testing.T) {
	server, _ := chatCompletionStub(t, "", http.StatusInternalServerError)
	client, err := NewClient(ClientConfig{
		Model:   "llava:7b",
		APIBase: server.URL + "/v1",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Infer(context.Background(), []byte{0xff}, "describe"); err == nil {
		t.Fatal("Infer() succeeded against failing backend")
	}
}

func TestInferRejectsEmptyPayload(t *testing.T) {
	client, err := NewClient(ClientConfig{Model: "llava:7b"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := client.Infer(context.Background(), nil, "describe"); err == nil {
		t.Fatal("Infer() accepted empty payload")
	}
}
