package mcpadapter

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const Version = "1.0.0"

// NewServer registers the guard tools on a fresh MCP server.
func NewServer(guard Guard) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "guard-agent",
			Version: Version,
		}, nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_input",
		Description: "Check user text for prompt injection, personal data, blocked topics, toxicity and profanity before it reaches a model",
	}, NewValidateInputHandler(guard))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_output",
		Description: "Check model output for toxicity and profanity before it is shown to a user",
	}, NewValidateOutputHandler(guard))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "guardrails_status",
		Description: "Active validators, protected endpoints and classifier cache statistics",
	}, NewStatusHandler(guard))

	return server
}
