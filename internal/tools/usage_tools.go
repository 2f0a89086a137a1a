package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

// UsageSummarizer is the read side of usage.Store.
type UsageSummarizer interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// RegisterCostSummary registers the cost_summary tool for querying
// token usage and API costs. A nil store registers nothing.
func RegisterCostSummary(r *Registry, store UsageSummarizer) {
	if store == nil {
		return
	}

	r.Register(&Tool{
		Name:        "cost_summary",
		Description: "Query your own token usage and API costs. Returns totals and an optional breakdown by model.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"period": map[string]any{
					"type":        "string",
					"enum":        []string{"today", "yesterday", "week", "month", "all"},
					"description": "Time period to summarize.",
				},
				"by_model": map[string]any{
					"type":        "boolean",
					"description": "Optional: break results down by model.",
				},
			},
			"required": []string{"period"},
		},
		Source: BuiltinSource,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			period, _ := args["period"].(string)
			byModel, _ := args["by_model"].(bool)

			start, end := ParsePeriod(period)

			summary, err := store.Summary(ctx, start, end)
			if err != nil {
				return "", fmt.Errorf("query usage summary: %w", err)
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Cost Summary (%s):\n", period)
			fmt.Fprintf(&sb, "  Total turns: %d\n", summary.TotalRecords)
			fmt.Fprintf(&sb, "  Input tokens: %s\n", formatTokenCount(summary.TotalInputTokens))
			fmt.Fprintf(&sb, "  Output tokens: %s\n", formatTokenCount(summary.TotalOutputTokens))
			fmt.Fprintf(&sb, "  Estimated cost: $%s\n", summary.TotalCostUSD.StringFixed(4))

			if byModel {
				grouped, err := store.SummaryByModel(ctx, start, end)
				if err != nil {
					return "", fmt.Errorf("query usage by model: %w", err)
				}
				if len(grouped) > 0 {
					sb.WriteString("\nBy Model:\n")
					for _, key := range usage.SortedModels(grouped) {
						sum := grouped[key]
						fmt.Fprintf(&sb, "  %s: $%s (%d turns, %s in / %s out)\n",
							key, sum.TotalCostUSD.StringFixed(4), sum.TotalRecords,
							formatTokenCount(sum.TotalInputTokens),
							formatTokenCount(sum.TotalOutputTokens),
						)
					}
				}
			}

			return sb.String(), nil
		},
	})
}

// ParsePeriod converts a period name to a start/end time range.
func ParsePeriod(period string) (time.Time, time.Time) {
	now := time.Now()
	end := now.Add(1 * time.Minute) // slight future buffer

	switch period {
	case "today":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, end
	case "yesterday":
		yesterday := now.AddDate(0, 0, -1)
		start := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, yesterday.Location())
		endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, endOfDay
	case "week":
		return now.AddDate(0, 0, -7), end
	case "month":
		return now.AddDate(0, -1, 0), end
	default:
		return time.Time{}, end
	}
}

// formatTokenCount formats a token count as a compact string (e.g.,
// "1.23M", "456.0K", "789").
func formatTokenCount(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000.0)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000.0)
	}
	return fmt.Sprintf("%d", n)
}
