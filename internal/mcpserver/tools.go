package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the payments MCP server.
// Descriptions are what the LLM reads to decide which tool to use.
// All tools are read-only; nothing here moves money.

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Look up a single payment transaction by ID. "+
			"Returns the type (escrow, release, payout), amount, fee, status, "+
			"and the job and parties involved."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID (e.g. 'tx_a1b2c3...')")),
)

var ToolGetWallet = mcp.NewTool("get_wallet",
	mcp.WithDescription(
		"Check a user's wallet balance. "+
			"Shows the current balance in minor units plus the currency."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user ID (e.g. 'usr_123')")),
)

var ToolListDisputes = mcp.NewTool("list_disputes",
	mcp.WithDescription(
		"List open payment disputes, oldest first. "+
			"Shows who raised each dispute, against which job, and how long it has been open. "+
			"Disputes open past 48 hours are escalated to an admin automatically."),
)

var ToolEscrowStatusSummary = mcp.NewTool("escrow_status_summary",
	mcp.WithDescription(
		"Get platform-wide transaction totals grouped by type and status. "+
			"Useful for spotting stuck escrows (pending for long) or failed payout spikes."),
)
