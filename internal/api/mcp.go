package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/silverstar/intake/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine   IntakeEngine
	Sessions *Sessions
	Jobs     JobLister // optional; if nil, list_jobs returns an error
}

// NewMCPServer creates an MCP server with all intake tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"intake",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("intake is a conversational job-intake assistant. Start with start_session, then drive the conversation with send_message."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("start_session",
			mcp.WithDescription("Start a new intake conversation session. Returns the session ID and greeting state."),
			mcp.WithString("user_id", mcp.Description("Optional user identifier for profile persistence")),
		),
		mcpStartSession(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a user message to an intake session and get the assistant reply."),
			mcp.WithString("session_id", mcp.Description("Session ID from start_session"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("reset_conversation",
			mcp.WithDescription("Reset a session to the greeting state, clearing profile and history."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpResetConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Get the candidate profile collected so far in a session."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("seed_profile",
			mcp.WithDescription("Pre-fill known profile fields for a session (e.g. from a returning user). Never overwrites fields the user already provided."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
			mcp.WithString("fields", mcp.Description("JSON object of field name to value, e.g. {\"full_name\": \"Jane Doe\"}"), mcp.Required()),
		),
		mcpSeedProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("update_profile",
			mcp.WithDescription("Apply direct profile field updates to a session and re-validate."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
			mcp.WithString("updates", mcp.Description("JSON object of field name to new value"), mcp.Required()),
		),
		mcpUpdateProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("list_jobs",
			mcp.WithDescription("List active job listings, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of listings (default 10)")),
		),
		mcpListJobs(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"intake://jobs/active",
			"Active Job Listings",
			mcp.WithResourceDescription("Currently active job listings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJobs(deps),
	)

	return s
}

func mcpStartSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetString("user_id", "")

		sess := deps.Sessions.Create(userID)

		b, err := json.Marshal(map[string]any{
			"session_id": sess.ID,
			"state":      string(sess.CurrentState()),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		sess, ok := deps.Sessions.Get(sessionID)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		reply, snapshot := deps.Engine.ProcessMessage(ctx, sess, message)

		b, err := json.Marshal(map[string]any{
			"reply":   reply,
			"state":   string(sess.CurrentState()),
			"profile": snapshot,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResetConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		sess, ok := deps.Sessions.Get(sessionID)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		return mcpText(deps.Engine.ResetConversation(sess)), nil
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		sess, ok := deps.Sessions.Get(sessionID)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		b, err := json.Marshal(sess.ProfileCopy())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSeedProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		fieldsJSON, err := req.RequireString("fields")
		if err != nil {
			return mcpError("fields is required"), nil
		}

		sess, ok := deps.Sessions.Get(sessionID)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		var fields map[string]string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return mcpError(fmt.Sprintf("invalid fields JSON: %v", err)), nil
		}
		for name := range fields {
			if profile.ParseField(name) == "" {
				return mcpError(fmt.Sprintf("unknown profile field %q", name)), nil
			}
		}

		deps.Engine.SeedProfile(sess, fields)

		b, err := json.Marshal(map[string]any{
			"state":   string(sess.CurrentState()),
			"profile": sess.ProfileCopy().Snapshot(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		updatesJSON, err := req.RequireString("updates")
		if err != nil {
			return mcpError("updates is required"), nil
		}

		sess, ok := deps.Sessions.Get(sessionID)
		if !ok {
			return mcpError(fmt.Sprintf("session %s not found", sessionID)), nil
		}

		var updates map[string]string
		if err := json.Unmarshal([]byte(updatesJSON), &updates); err != nil {
			return mcpError(fmt.Sprintf("invalid updates JSON: %v", err)), nil
		}
		if len(updates) == 0 {
			return mcpError("updates must contain at least one field"), nil
		}

		return mcpText(deps.Engine.ApplyManualUpdate(ctx, sess, updates)), nil
	}
}

func mcpListJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Jobs == nil {
			return mcpError("job listings not available: no job store configured"), nil
		}

		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		jobs, err := deps.Jobs.ListActiveJobs(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing jobs failed: %v", err)), nil
		}

		if len(jobs) == 0 {
			return mcpText("[]"), nil
		}

		type jobResult struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Company  string `json:"company,omitempty"`
			Location string `json:"location,omitempty"`
			JobType  string `json:"job_type,omitempty"`
			URL      string `json:"url,omitempty"`
			Posted   string `json:"posted"`
		}

		results := make([]jobResult, len(jobs))
		for i, j := range jobs {
			results[i] = jobResult{
				ID:       j.ID,
				Title:    j.Title,
				Company:  j.Company,
				Location: j.Location,
				JobType:  j.JobType,
				URL:      j.URL,
				Posted:   j.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal listings: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Jobs == nil {
			return nil, fmt.Errorf("no job store configured")
		}

		jobs, err := deps.Jobs.ListActiveJobs(50)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}

		b, err := json.Marshal(jobs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jobs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
