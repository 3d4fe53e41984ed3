package guard

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/locguard/guard/internal/journal"
)

var testImpl = &mcp.Implementation{Name: "locguard-test", Version: "0.1.0"}

func mcpSession(t *testing.T, g *Guard) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	g.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	session, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	f := newFixture(t, staleArtifact, page(12), true)
	session := mcpSession(t, f.guard)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"locguard_health": true, "locguard_monitor": true, "locguard_mining_pass": true,
		"locguard_locators": true, "locguard_changes": true, "locguard_report": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing tools: %v", want)
	}
}

func TestMCP_MonitorThenPass(t *testing.T) {
	f := newFixture(t, staleArtifact, page(12), true)
	session := mcpSession(t, f.guard)

	var rep struct {
		ID              string `json:"id"`
		MiningSuggested bool   `json:"miningSuggested"`
	}
	if err := json.Unmarshal([]byte(callTool(t, session, "locguard_monitor", map[string]any{})), &rep); err != nil {
		t.Fatal(err)
	}
	if !rep.MiningSuggested {
		t.Error("stale locators should suggest mining")
	}

	var pr PassResult
	if err := json.Unmarshal([]byte(callTool(t, session, "locguard_mining_pass", map[string]any{"trigger": "mcp"})), &pr); err != nil {
		t.Fatal(err)
	}
	if pr.Status != PassApplied || pr.Trigger != "mcp" {
		t.Errorf("pass: status %s trigger %q", pr.Status, pr.Trigger)
	}

	var changes []journal.ChangeRecord
	if err := json.Unmarshal([]byte(callTool(t, session, "locguard_changes", map[string]any{"field": "name"})), &changes); err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Old != ".old_name" {
		t.Errorf("changes: %+v", changes)
	}

	var h Health
	if err := json.Unmarshal([]byte(callTool(t, session, "locguard_health", map[string]any{})), &h); err != nil {
		t.Fatal(err)
	}
	if h.Revision != 1 || h.Latest == nil || h.Latest.ID != rep.ID {
		t.Errorf("health: %+v", h)
	}
}

func TestMCP_ReportNotFoundIsToolError(t *testing.T) {
	f := newFixture(t, staleArtifact, page(12), true)
	session := mcpSession(t, f.guard)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "locguard_report",
		Arguments: map[string]any{"id": "hr_missing"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("want a tool error for an unknown report")
	}
}
