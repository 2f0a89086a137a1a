package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

func testUsageStore(t *testing.T) *usage.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "usage_test.db")
	s, err := usage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"millions", 1_230_000, "1.23M"},
		{"exact_million", 1_000_000, "1.00M"},
		{"thousands", 456_000, "456.0K"},
		{"exact_thousand", 1_000, "1.0K"},
		{"small", 789, "789"},
		{"zero", 0, "0"},
		{"large", 12_345_678, "12.35M"},
		{"boundary_below_million", 999_999, "1000.0K"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatTokenCount(tt.n)
			if got != tt.want {
				t.Errorf("formatTokenCount(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name       string
		period     string
		wantRecent bool // true if start should be recent
	}{
		{"today", "today", true},
		{"week", "week", true},
		{"month", "month", true},
		{"all", "all", false},
		{"unknown_defaults_to_all", "bogus", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := ParsePeriod(tt.period)

			if end.Before(time.Now().Add(-1 * time.Second)) {
				t.Errorf("end %v should be at or after now", end)
			}

			if tt.wantRecent {
				cutoff := time.Now().AddDate(0, -2, 0)
				if start.Before(cutoff) {
					t.Errorf("start %v too far in the past for period %q", start, tt.period)
				}
			} else if !start.IsZero() {
				t.Errorf("start should be zero for period %q, got %v", tt.period, start)
			}
		})
	}
}

func TestParsePeriod_YesterdayBounds(t *testing.T) {
	start, end := ParsePeriod("yesterday")
	now := time.Now()
	yesterday := now.AddDate(0, 0, -1)
	expectedStart := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, yesterday.Location())
	expectedEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !start.Equal(expectedStart) {
		t.Errorf("yesterday start = %v, want %v", start, expectedStart)
	}
	if !end.Equal(expectedEnd) {
		t.Errorf("yesterday end = %v, want %v", end, expectedEnd)
	}
}

func TestCostSummaryTool_EmptyStore(t *testing.T) {
	reg := NewRegistry()
	RegisterCostSummary(reg, testUsageStore(t))

	tool := reg.Get("cost_summary")
	if tool == nil {
		t.Fatal("cost_summary tool not registered")
	}

	result, err := tool.Handler(context.Background(), map[string]any{"period": "all"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(result, "Total turns: 0") {
		t.Errorf("expected zero turns in output, got:\n%s", result)
	}
	if !strings.Contains(result, "$0.0000") {
		t.Errorf("expected zero cost in output, got:\n%s", result)
	}
}

func TestCostSummaryTool_ByModel(t *testing.T) {
	store := testUsageStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []usage.Record{
		{Timestamp: now, Model: "cheap", Provider: "ollama", InputTokens: 100, OutputTokens: 50, CostUSD: decimal.RequireFromString("0.01")},
		{Timestamp: now, Model: "expensive", Provider: "openai", InputTokens: 100, OutputTokens: 50, CostUSD: decimal.NewFromInt(10)},
	}
	for _, rec := range recs {
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	reg := NewRegistry()
	RegisterCostSummary(reg, store)

	result, err := reg.Execute(ctx, "cost_summary", map[string]any{"period": "all", "by_model": true})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if !strings.Contains(result, "Total turns: 2") || !strings.Contains(result, "$10.0100") {
		t.Errorf("unexpected totals:\n%s", result)
	}
	if !strings.Contains(result, "By Model:") {
		t.Errorf("missing breakdown:\n%s", result)
	}
	expIdx := strings.Index(result, "expensive")
	cheapIdx := strings.Index(result, "cheap")
	if expIdx == -1 || cheapIdx == -1 || expIdx > cheapIdx {
		t.Errorf("expensive should appear before cheap, got:\n%s", result)
	}
}

func TestRegisterCostSummary_NilStore(t *testing.T) {
	reg := NewRegistry()
	RegisterCostSummary(reg, nil)

	if reg.Get("cost_summary") != nil {
		t.Error("cost_summary should not be registered with nil store")
	}
}
