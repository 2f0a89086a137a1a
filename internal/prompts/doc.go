// Package prompts contains the prompt text the agent sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: it is interpolated with fmt.Sprintf and validated by tests.
// User-supplied prompts come from config.yaml or the API and replace
// BaseSystemPrompt entirely.
package prompts
