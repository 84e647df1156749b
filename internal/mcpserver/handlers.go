package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Eaziking2002/talent-afro-sub001/internal/money"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PaymentsClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PaymentsClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetTransaction looks up one transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	text, err := formatTransaction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetWallet checks a user's balance.
func (h *Handlers) HandleGetWallet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetWallet(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get wallet: %v", err)), nil
	}

	text, err := formatWallet(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse wallet: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleListDisputes lists open disputes.
func (h *Handlers) HandleListDisputes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListDisputes(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list disputes: %v", err)), nil
	}

	text, err := formatDisputes(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse disputes: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleEscrowStatusSummary shows platform-wide transaction totals.
func (h *Handlers) HandleEscrowStatusSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStatusSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get summary: %v", err)), nil
	}

	text, err := formatSummary(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

type transactionView struct {
	ID            string     `json:"id"`
	JobID         string     `json:"jobId"`
	EmployerID    string     `json:"employerId"`
	WorkerID      string     `json:"workerId"`
	Type          string     `json:"type"`
	Amount        int64      `json:"amount"`
	Fee           int64      `json:"fee"`
	Net           int64      `json:"net"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failureReason"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}

func formatTransaction(raw json.RawMessage) (string, error) {
	var tx transactionView
	if err := json.Unmarshal(raw, &tx); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s\n", tx.ID)
	fmt.Fprintf(&sb, "Type: %s | Status: %s\n", tx.Type, tx.Status)
	fmt.Fprintf(&sb, "Amount: %s (fee %s, net %s)\n",
		money.Format(tx.Amount, tx.Currency),
		money.Format(tx.Fee, tx.Currency),
		money.Format(tx.Net, tx.Currency))
	if tx.JobID != "" {
		fmt.Fprintf(&sb, "Job: %s\n", tx.JobID)
	}
	if tx.EmployerID != "" {
		fmt.Fprintf(&sb, "Employer: %s\n", tx.EmployerID)
	}
	if tx.WorkerID != "" {
		fmt.Fprintf(&sb, "Worker: %s\n", tx.WorkerID)
	}
	fmt.Fprintf(&sb, "Created: %s\n", tx.CreatedAt.Format(time.RFC3339))
	if tx.CompletedAt != nil {
		fmt.Fprintf(&sb, "Completed: %s\n", tx.CompletedAt.Format(time.RFC3339))
	}
	if tx.FailureReason != "" {
		fmt.Fprintf(&sb, "Failure reason: %s\n", tx.FailureReason)
	}
	return sb.String(), nil
}

func formatWallet(raw json.RawMessage) (string, error) {
	var w struct {
		UserID   string `json:"userId"`
		Balance  int64  `json:"balance"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", err
	}
	if w.Currency == "" {
		return fmt.Sprintf("Wallet for %s: empty (no transactions yet)", w.UserID), nil
	}
	return fmt.Sprintf("Wallet for %s: %s", w.UserID, money.Format(w.Balance, w.Currency)), nil
}

func formatDisputes(raw json.RawMessage) (string, error) {
	var resp struct {
		Disputes []struct {
			ID        string    `json:"id"`
			JobID     string    `json:"jobId"`
			RaisedBy  string    `json:"raisedBy"`
			Reason    string    `json:"reason"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"disputes"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if resp.Count == 0 {
		return "No open disputes.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d open dispute(s):\n\n", resp.Count)
	for _, d := range resp.Disputes {
		age := time.Since(d.CreatedAt).Round(time.Hour)
		fmt.Fprintf(&sb, "- %s (job %s): raised by %s %s ago\n  %s\n",
			d.ID, d.JobID, d.RaisedBy, age, d.Reason)
	}
	return sb.String(), nil
}

func formatSummary(raw json.RawMessage) (string, error) {
	var resp struct {
		Summary map[string]map[string]struct {
			Amount int64 `json:"amount"`
			Net    int64 `json:"net"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Summary) == 0 {
		return "No transactions recorded.", nil
	}

	buckets := make([]string, 0, len(resp.Summary))
	for b := range resp.Summary {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	var sb strings.Builder
	sb.WriteString("Transaction totals by type and status:\n\n")
	for _, b := range buckets {
		fmt.Fprintf(&sb, "%s:\n", b)

		currencies := make([]string, 0, len(resp.Summary[b]))
		for cur := range resp.Summary[b] {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)

		for _, cur := range currencies {
			sums := resp.Summary[b][cur]
			fmt.Fprintf(&sb, "  %s (net %s)\n",
				money.Format(sums.Amount, cur), money.Format(sums.Net, cur))
		}
	}
	return sb.String(), nil
}
