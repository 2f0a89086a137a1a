package tools

import "context"

// ThreadResetter clears a thread's checkpointed history.
// Implemented by agent.Agent.
type ThreadResetter interface {
	ResetThread(ctx context.Context, threadID string) error
}

// RegisterThreadReset adds the thread_reset tool. It only makes sense
// when the agent keeps history between turns.
func RegisterThreadReset(r *Registry, resetter ThreadResetter) {
	r.Register(&Tool{
		Name: "thread_reset",
		Description: "Clear the current conversation history and start fresh. " +
			"ONLY use when the user EXPLICITLY asks to clear history, start over, or reset. " +
			"NEVER call this tool on your own initiative.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Brief reason for the reset (logged for debugging)",
				},
			},
		},
		Source: BuiltinSource,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			reason, _ := args["reason"].(string)
			if reason == "" {
				reason = "user request"
			}

			if err := resetter.ResetThread(ctx, ThreadIDFromContext(ctx)); err != nil {
				return "", err
			}

			return "Conversation reset successfully. Reason: " + reason, nil
		},
	})
}
