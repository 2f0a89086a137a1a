package chat

import "github.com/sinagilassi/mozichem-ai/internal/llm"

// Message types reported to clients.
const (
	TypeAI      = "ai"
	TypeTool    = "tool"
	TypeUser    = "user"
	TypeSystem  = "system"
	TypeUnknown = "unknown"
)

// AgentMessage is one transcript entry in the shape the web client renders.
type AgentMessage struct {
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// AnalyzeMessage maps a transcript message onto an AgentMessage.
func AnalyzeMessage(m llm.Message) AgentMessage {
	out := AgentMessage{Content: m.Content}
	switch m.Role {
	case llm.RoleAssistant:
		out.Type = TypeAI
		out.ToolCalls = m.ToolCalls
	case llm.RoleTool:
		out.Type = TypeTool
		out.Name = m.Name
		out.ToolCallID = m.ToolCallID
	case llm.RoleUser:
		out.Type = TypeUser
	case llm.RoleSystem:
		out.Type = TypeSystem
	default:
		out.Type = TypeUnknown
	}
	return out
}

// AnalyzeMessages maps a whole transcript.
func AnalyzeMessages(msgs []llm.Message) []AgentMessage {
	out := make([]AgentMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, AnalyzeMessage(m))
	}
	return out
}
