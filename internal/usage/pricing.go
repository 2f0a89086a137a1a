package usage

import (
	"github.com/shopspring/decimal"
)

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPerMTok  decimal.Decimal `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok decimal.Decimal `yaml:"output_per_mtok" json:"output_per_mtok"`
}

var million = decimal.NewFromInt(1_000_000)

// Cost returns the USD cost of the given token counts.
func (p ModelPricing) Cost(inputTokens, outputTokens int) decimal.Decimal {
	in := decimal.NewFromInt(int64(inputTokens)).Mul(p.InputPerMTok).Div(million)
	out := decimal.NewFromInt(int64(outputTokens)).Mul(p.OutputPerMTok).Div(million)
	return in.Add(out)
}

// DefaultPricing covers the default models of each hosted provider.
var DefaultPricing = map[string]ModelPricing{
	"gpt-4o-mini": {
		InputPerMTok:  decimal.RequireFromString("0.15"),
		OutputPerMTok: decimal.RequireFromString("0.60"),
	},
	"gpt-4o": {
		InputPerMTok:  decimal.RequireFromString("2.50"),
		OutputPerMTok: decimal.RequireFromString("10"),
	},
	"gemini-2.0-flash": {
		InputPerMTok:  decimal.RequireFromString("0.10"),
		OutputPerMTok: decimal.RequireFromString("0.40"),
	},
	"claude-sonnet-4-5": {
		InputPerMTok:  decimal.NewFromInt(3),
		OutputPerMTok: decimal.NewFromInt(15),
	},
	"claude-haiku-4-5": {
		InputPerMTok:  decimal.NewFromInt(1),
		OutputPerMTok: decimal.NewFromInt(5),
	},
}

// ComputeCost calculates the USD cost for a model's token usage based
// on the pricing table. Models not in the table are treated as free
// (local/Ollama models). Negative counts mean "not reported" and cost
// nothing.
func ComputeCost(model string, inputTokens, outputTokens int, pricing map[string]ModelPricing) decimal.Decimal {
	entry, ok := pricing[model]
	if !ok {
		return decimal.Zero
	}
	return entry.Cost(max(inputTokens, 0), max(outputTokens, 0))
}
