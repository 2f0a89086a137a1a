// Package usage records token usage and cost per chat turn. Records are
// append-only and indexed by timestamp and thread.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Record represents a single chat turn's token usage and cost.
type Record struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"`
	ThreadID     string          `json:"thread_id"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	DurationMS   int64           `json:"duration_ms"`
}

// Summary holds aggregated token usage and cost totals.
type Summary struct {
	TotalRecords      int             `json:"total_records"`
	TotalInputTokens  int64           `json:"total_input_tokens"`
	TotalOutputTokens int64           `json:"total_output_tokens"`
	TotalCostUSD      decimal.Decimal `json:"total_cost_usd"`
}

func (s *Summary) add(in, out int64, cost decimal.Decimal) {
	s.TotalRecords++
	s.TotalInputTokens += in
	s.TotalOutputTokens += out
	s.TotalCostUSD = s.TotalCostUSD.Add(cost)
}

// Store is an append-only SQLite store for usage records. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates a usage store at the given database path. The schema
// is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	// Cost is stored as decimal text so sums stay exact.
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		thread_id     TEXT,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd      TEXT NOT NULL,
		duration_ms   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_thread ON usage_records(thread_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a usage record. If rec.ID is empty, a UUIDv7 is
// generated. Unreported (negative) token counts are stored as zero.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, timestamp, thread_id, provider, model, input_tokens, output_tokens, cost_usd, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.ThreadID,
		rec.Provider,
		rec.Model,
		max(rec.InputTokens, 0),
		max(rec.OutputTokens, 0),
		rec.CostUSD.String(),
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Summary returns aggregated totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	groups, err := s.grouped(ctx, start, end, func(string) string { return "" })
	if err != nil {
		return nil, err
	}
	if sum, ok := groups[""]; ok {
		return sum, nil
	}
	return &Summary{}, nil
}

// SummaryByModel returns per-model totals for records within [start, end).
func (s *Store) SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	return s.grouped(ctx, start, end, func(model string) string { return model })
}

func (s *Store) grouped(ctx context.Context, start, end time.Time, key func(model string) string) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, input_tokens, output_tokens, cost_usd
		 FROM usage_records
		 WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var (
			model    string
			in, out  int64
			costText string
		)
		if err := rows.Scan(&model, &in, &out, &costText); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		cost, err := decimal.NewFromString(costText)
		if err != nil {
			cost = decimal.Zero
		}
		k := key(model)
		sum, ok := result[k]
		if !ok {
			sum = &Summary{}
			result[k] = sum
		}
		sum.add(in, out, cost)
	}
	return result, rows.Err()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, COALESCE(thread_id, ''), provider, model, input_tokens, output_tokens, cost_usd, duration_ms
		 FROM usage_records ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			ts, cost string
		)
		if err := rows.Scan(&r.ID, &ts, &r.ThreadID, &r.Provider, &r.Model, &r.InputTokens, &r.OutputTokens, &cost, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339, ts)
		r.CostUSD, _ = decimal.NewFromString(cost)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SortedModels returns the keys of a SummaryByModel result, most
// expensive first.
func SortedModels(byModel map[string]*Summary) []string {
	keys := make([]string, 0, len(byModel))
	for k := range byModel {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := byModel[keys[i]].TotalCostUSD, byModel[keys[j]].TotalCostUSD
		if !ci.Equal(cj) {
			return ci.GreaterThan(cj)
		}
		return keys[i] < keys[j]
	})
	return keys
}
