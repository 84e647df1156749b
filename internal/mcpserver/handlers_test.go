package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// fakePlatform serves canned API responses for handler tests.
func fakePlatform(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "unauthorized", "message": "API key required",
			})
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "not_found", "message": "no such resource",
			})
			return
		}
		json.NewEncoder(w).Encode(body)
	}))
}

func testHandlers(t *testing.T, routes map[string]any) *Handlers {
	t.Helper()
	srv := fakePlatform(t, routes)
	t.Cleanup(srv.Close)
	return NewHandlers(NewPaymentsClient(Config{APIURL: srv.URL, APIKey: "sk_test"}))
}

func callTool(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestHandleGetTransaction(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/transactions/tx_abc": map[string]any{
			"id": "tx_abc", "jobId": "job_1", "employerId": "usr_e", "workerId": "usr_w",
			"type": "escrow", "amount": 10000, "fee": 1000, "net": 9000,
			"currency": "USD", "status": "completed",
			"createdAt": time.Now().Format(time.RFC3339),
		},
	})

	result := callTool(t, h.HandleGetTransaction, map[string]any{"transaction_id": "tx_abc"})
	text := resultText(t, result)

	for _, want := range []string{"tx_abc", "escrow", "completed", "100.00 USD", "10.00 USD", "90.00 USD"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestHandleGetTransaction_MissingID(t *testing.T) {
	h := testHandlers(t, nil)

	result := callTool(t, h.HandleGetTransaction, nil)
	if !result.IsError {
		t.Error("expected error result for missing transaction_id")
	}
}

func TestHandleGetTransaction_NotFound(t *testing.T) {
	h := testHandlers(t, nil)

	result := callTool(t, h.HandleGetTransaction, map[string]any{"transaction_id": "tx_missing"})
	if !result.IsError {
		t.Error("expected error result for unknown transaction")
	}
	if !strings.Contains(resultText(t, result), "404") {
		t.Errorf("expected 404 in error: %s", resultText(t, result))
	}
}

func TestHandleGetWallet(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/users/usr_w/wallet": map[string]any{
			"userId": "usr_w", "balance": 9000, "currency": "USD",
		},
	})

	result := callTool(t, h.HandleGetWallet, map[string]any{"user_id": "usr_w"})
	text := resultText(t, result)
	if !strings.Contains(text, "90.00 USD") {
		t.Errorf("expected formatted balance, got: %s", text)
	}
}

func TestHandleGetWallet_EmptyWallet(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/users/usr_new/wallet": map[string]any{
			"userId": "usr_new", "balance": 0, "currency": "",
		},
	})

	result := callTool(t, h.HandleGetWallet, map[string]any{"user_id": "usr_new"})
	if !strings.Contains(resultText(t, result), "empty") {
		t.Errorf("expected empty wallet message, got: %s", resultText(t, result))
	}
}

func TestHandleListDisputes(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/admin/disputes": map[string]any{
			"disputes": []map[string]any{
				{
					"id": "dsp_1", "jobId": "job_1", "raisedBy": "usr_w",
					"reason":    "work delivered, payment not released",
					"createdAt": time.Now().Add(-50 * time.Hour).Format(time.RFC3339),
				},
			},
			"count": 1,
		},
	})

	result := callTool(t, h.HandleListDisputes, nil)
	text := resultText(t, result)
	if !strings.Contains(text, "dsp_1") || !strings.Contains(text, "usr_w") {
		t.Errorf("expected dispute details, got: %s", text)
	}
}

func TestHandleListDisputes_Empty(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/admin/disputes": map[string]any{"disputes": []any{}, "count": 0},
	})

	result := callTool(t, h.HandleListDisputes, nil)
	if !strings.Contains(resultText(t, result), "No open disputes") {
		t.Errorf("expected empty message, got: %s", resultText(t, result))
	}
}

func TestHandleEscrowStatusSummary(t *testing.T) {
	h := testHandlers(t, map[string]any{
		"/v1/admin/transactions/summary": map[string]any{
			"summary": map[string]any{
				"escrow.completed": map[string]any{
					"USD": map[string]any{"amount": 50000, "net": 45000},
				},
				"payout.failed": map[string]any{
					"USD": map[string]any{"amount": 5000, "net": 5000},
				},
			},
		},
	})

	result := callTool(t, h.HandleEscrowStatusSummary, nil)
	text := resultText(t, result)
	for _, want := range []string{"escrow.completed", "payout.failed", "500.00 USD"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080", APIKey: "sk_test"})
	if s == nil {
		t.Fatal("expected server")
	}
}
