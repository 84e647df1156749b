package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all ops tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("talent-afro-payments", "1.0.0")
	client := NewPaymentsClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetTransaction, h.HandleGetTransaction)
	s.AddTool(ToolGetWallet, h.HandleGetWallet)
	s.AddTool(ToolListDisputes, h.HandleListDisputes)
	s.AddTool(ToolEscrowStatusSummary, h.HandleEscrowStatusSummary)

	return s
}
