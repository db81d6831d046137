package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendText(t *testing.T) {
	var received SendTextRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sendText" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(SendTextResponse{Success: true, ID: "msg-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.SendText(context.Background(), "session-1", "5527999990000@c.us", "Oi!"); err != nil {
		t.Fatalf("SendText returned error: %v", err)
	}

	if received.Session != "session-1" || received.ChatID != "5527999990000@c.us" || received.Text != "Oi!" {
		t.Errorf("gateway received %+v", received)
	}
	if received.LinkPreview {
		t.Error("link preview must be disabled on campaign sends")
	}
}

func TestSendTextGatewayFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"session down"}`, "status 500"},
		{"rejected send", http.StatusOK, `{"success":false,"message":"number not on whatsapp"}`, "rejected"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer server.Close()

			client := NewClient(server.URL)
			err := client.SendText(context.Background(), "session-1", "chat", "text")
			if err == nil || !strings.Contains(err.Error(), test.expected) {
				t.Errorf("SendText error = %v, expected to contain %q", err, test.expected)
			}
		})
	}
}

func TestSendTextToleratesUnwrappedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.SendText(context.Background(), "session-1", "chat", "text"); err != nil {
		t.Errorf("SendText returned error on 2xx with non-JSON body: %v", err)
	}
}

func TestSendTextHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL)
	if err := client.SendText(ctx, "session-1", "chat", "text"); err == nil {
		t.Error("SendText ignored a cancelled context")
	}
}
