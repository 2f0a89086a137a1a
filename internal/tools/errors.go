package tools

import "fmt"

// ErrToolUnavailable is returned when a call targets a tool that is not
// registered, for example one the model hallucinated or one an MCP
// server stopped advertising.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
