package guard

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/locguard/kit"
)

// RegisterMCP registers the locguard tools on an MCP server.
func (g *Guard) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_health",
		Description: "Artifact revision and the latest stored health report summary.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, g.logged("health", g.healthEndpoint()), kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_monitor",
		Description: "Run the drift battery against the live page and return the health report.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, g.logged("monitor", g.monitorEndpoint()), kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_mining_pass",
		Description: "Mine fresh locators from the rendered table, validate them and apply the accepted ones to the locator file.",
		InputSchema: inputSchema(map[string]any{
			"trigger": map[string]any{"type": "string", "description": "Label recorded with the pass (default manual)"},
		}, nil),
	}, g.logged("mining_pass", g.passEndpoint()), kit.DecodeJSON[passRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_locators",
		Description: "Return the persisted locator set.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, g.logged("locators", g.locatorsEndpoint()), kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_changes",
		Description: "List journaled locator changes, newest first.",
		InputSchema: inputSchema(map[string]any{
			"field": map[string]any{"type": "string", "description": "Only changes of this field"},
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}, g.logged("changes", g.changesEndpoint()), kit.DecodeJSON[listRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "locguard_report",
		Description: "Return a stored health report by id, or the latest.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Report id (default latest)"},
		}, nil),
	}, g.logged("report", g.reportEndpoint()), kit.DecodeJSON[reportRequest]())
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
