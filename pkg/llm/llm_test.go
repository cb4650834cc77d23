package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaClient_Ask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("expected non-streaming request")
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "hello back", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(&Config{BaseURL: server.URL, Model: "test-model", Timeout: 5 * time.Second})
	answer, err := client.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.Response != "hello back" {
		t.Errorf("expected %q, got %q", "hello back", answer.Response)
	}
	if answer.LatencyMS < 0 {
		t.Errorf("expected non-negative latency, got %f", answer.LatencyMS)
	}
}

func TestOllamaClient_Ask_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(&Config{BaseURL: server.URL, Model: "test-model"})
	_, err := client.Ask(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestOllamaClient_StreamAsk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i, piece := range []string{"one", "two", "three"} {
			resp := generateResponse{Response: piece, Done: i == 2}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "%s\n", data)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := NewOllamaClient(&Config{BaseURL: server.URL, Model: "test-model"})
	chunks, errc := client.StreamAsk(context.Background(), "hi")

	var got []Chunk
	for c := range chunks {
		got = append(got, c)
	}
	if err := <-errc; err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if !got[0].IsFirst() {
		t.Error("expected first chunk to report IsFirst")
	}
	if got[1].IsFirst() {
		t.Error("expected second chunk to not report IsFirst")
	}
	for i, c := range got {
		if c.Number != i+1 {
			t.Errorf("chunk %d: expected Number %d, got %d", i, i+1, c.Number)
		}
	}
}

func TestOllamaClient_StreamAsk_Cancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 1000; i++ {
			resp := generateResponse{Response: "x", Done: false}
			data, _ := json.Marshal(resp)
			fmt.Fprintf(w, "%s\n", data)
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
	}))
	defer server.Close()

	client := NewOllamaClient(&Config{BaseURL: server.URL, Model: "test-model"})
	ctx, cancel := context.WithCancel(context.Background())
	chunks, _ := client.StreamAsk(ctx, "hi")

	count := 0
	for range chunks {
		count++
		if count == 2 {
			cancel()
		}
	}

	if count == 1000 {
		t.Error("expected cancellation to stop the stream early")
	}
}
