package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olgasafonova/cbeta-mcp-server/internal/envelope"
)

// RegisterMCP exposes every tool of the dispatcher's registry on server.
// Arguments are validated by the dispatcher, not by the SDK.
func RegisterMCP(server *mcp.Server, dispatcher *Dispatcher, logger *slog.Logger) int {
	tools := dispatcher.Registry().List()
	for _, desc := range tools {
		server.AddTool(BuildTool(desc), callHandler(dispatcher, desc.Name))
	}
	if logger != nil {
		logger.Info("Registered all tools", "count", len(tools))
	}
	return len(tools)
}

// BuildTool creates an mcp.Tool from a Descriptor.
func BuildTool(desc Descriptor) *mcp.Tool {
	annotations := &mcp.ToolAnnotations{
		Title:          desc.Title,
		ReadOnlyHint:   desc.ReadOnly,
		IdempotentHint: desc.Idempotent,
	}
	if desc.Destructive {
		annotations.DestructiveHint = ptr(true)
	} else {
		annotations.DestructiveHint = ptr(false)
	}
	if desc.OpenWorld {
		annotations.OpenWorldHint = ptr(true)
	}

	return &mcp.Tool{
		Name:        desc.Name,
		Title:       desc.Title,
		Description: desc.Description,
		InputSchema: desc.Schema.JSONSchema(),
		Annotations: annotations,
	}
}

func callHandler(dispatcher *Dispatcher, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		return ToolResult(dispatcher.InvokeJSON(ctx, name, raw)), nil
	}
}

// ToolResult renders an envelope as an MCP tool result. The envelope travels
// both as JSON text and as structured content; error envelopes set IsError.
func ToolResult(env envelope.Envelope) *mcp.CallToolResult {
	data, err := json.Marshal(env)
	if err != nil {
		env = envelope.Error("result is not JSON-serializable: " + err.Error())
		data, _ = json.Marshal(env)
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: json.RawMessage(data),
		IsError:           env.IsError(),
	}
}
