package mcpadapter

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/guardrails"
)

// Guard is the subset of the guard the MCP tools need.
type Guard interface {
	Enabled() bool
	ValidateInput(ctx context.Context, text string) guardrails.Report
	ValidateOutput(ctx context.Context, text string) guardrails.Report
	Messages() guardrails.Messages
	Status() guardrails.Status
}

// ValidateTextInput is the MCP tool input schema for both validation tools.
type ValidateTextInput struct {
	Text string `json:"text" jsonschema:"text to validate"`
}

// ValidationResult mirrors what the HTTP middleware would do with the text.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	Text          string   `json:"text"`
	Modified      bool     `json:"modified"`
	ViolationType string   `json:"violation_type,omitempty"`
	Message       string   `json:"message,omitempty"`
	FailedOpen    []string `json:"failed_open,omitempty"`
}

type StatusInput struct{}

// NewValidateInputHandler returns a tool handler that runs the input chain.
// Pass the returned function to mcp.AddTool.
func NewValidateInputHandler(guard Guard) func(context.Context, *mcp.CallToolRequest, ValidateTextInput) (*mcp.CallToolResult, ValidationResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateTextInput) (*mcp.CallToolResult, ValidationResult, error) {
		return validate(ctx, guard, guard.ValidateInput, input)
	}
}

// NewValidateOutputHandler returns a tool handler that runs the output chain.
func NewValidateOutputHandler(guard Guard) func(context.Context, *mcp.CallToolRequest, ValidateTextInput) (*mcp.CallToolResult, ValidationResult, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateTextInput) (*mcp.CallToolResult, ValidationResult, error) {
		return validate(ctx, guard, guard.ValidateOutput, input)
	}
}

func NewStatusHandler(guard Guard) func(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, guardrails.Status, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, guardrails.Status, error) {
		return nil, guard.Status(), nil
	}
}

func validate(
	ctx context.Context,
	guard Guard,
	run func(context.Context, string) guardrails.Report,
	input ValidateTextInput,
) (*mcp.CallToolResult, ValidationResult, error) {
	if !guard.Enabled() || input.Text == "" {
		return nil, ValidationResult{Valid: true, Text: input.Text}, nil
	}

	report := run(ctx, input.Text)
	if v := report.Violation; v != nil {
		return nil, ValidationResult{
			Valid:         false,
			ViolationType: string(v.Type),
			Message:       guard.Messages().ForViolation(v.Type),
			FailedOpen:    report.FailedOpen,
		}, nil
	}

	return nil, ValidationResult{
		Valid:      true,
		Text:       report.Text,
		Modified:   report.Modified(),
		FailedOpen: report.FailedOpen,
	}, nil
}
