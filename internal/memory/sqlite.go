package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
)

// Driver is the database/sql driver name of the pure-Go SQLite driver.
const Driver = "sqlite"

// SQLiteStore is a SQLite-backed Checkpointer.
type SQLiteStore struct {
	db          *sqlx.DB
	maxMessages int
}

var _ Checkpointer = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies migrations. dbPath may be ":memory:".
func NewSQLiteStore(ctx context.Context, dbPath string, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	db, err := sqlx.Open(Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := Migrate(ctx, db.DB, false); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, maxMessages: maxMessages}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type dbMessage struct {
	ThreadID   string         `db:"thread_id"`
	Seq        int            `db:"seq"`
	Role       string         `db:"role"`
	Content    string         `db:"content"`
	ToolCalls  sql.NullString `db:"tool_calls"`
	ToolCallID string         `db:"tool_call_id"`
	Name       string         `db:"name"`
	IsError    bool           `db:"is_error"`
}

func toDBMessage(threadID string, seq int, m llm.Message) (dbMessage, error) {
	dm := dbMessage{
		ThreadID:   threadID,
		Seq:        seq,
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
		IsError:    m.IsError,
	}
	if len(m.ToolCalls) > 0 {
		raw, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return dm, fmt.Errorf("marshal tool calls: %w", err)
		}
		dm.ToolCalls = sql.NullString{String: string(raw), Valid: true}
	}
	return dm, nil
}

func (dm dbMessage) message() (llm.Message, error) {
	m := llm.Message{
		Role:       dm.Role,
		Content:    dm.Content,
		ToolCallID: dm.ToolCallID,
		Name:       dm.Name,
		IsError:    dm.IsError,
	}
	if dm.ToolCalls.Valid && dm.ToolCalls.String != "" {
		if err := json.Unmarshal([]byte(dm.ToolCalls.String), &m.ToolCalls); err != nil {
			return m, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	return m, nil
}

// Load returns the thread's messages in order.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) ([]llm.Message, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM threads WHERE id = ?)`, threadID); err != nil {
		return nil, fmt.Errorf("lookup thread: %w", err)
	}
	if !exists {
		return nil, ErrThreadNotFound
	}

	var rows []dbMessage
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT thread_id, seq, role, content, tool_calls, tool_call_id, name, is_error
		 FROM thread_messages WHERE thread_id = ? ORDER BY seq`, threadID); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	out := make([]llm.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.message()
		if err != nil {
			return nil, fmt.Errorf("thread %s seq %d: %w", threadID, r.Seq, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Save replaces the thread's messages in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, messages []llm.Message) (err error) {
	messages = Trim(messages, s.maxMessages)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		threadID, now, now); err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM thread_messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	for i, m := range messages {
		dm, convErr := toDBMessage(threadID, i, m)
		if convErr != nil {
			err = convErr
			return err
		}
		if _, err = tx.NamedExecContext(ctx,
			`INSERT INTO thread_messages (thread_id, seq, role, content, tool_calls, tool_call_id, name, is_error)
			 VALUES (:thread_id, :seq, :role, :content, :tool_calls, :tool_call_id, :name, :is_error)`, dm); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes a thread and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// List returns every thread, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Thread, error) {
	var out []Thread
	err := s.db.SelectContext(ctx, &out,
		`SELECT t.id, t.created_at, t.updated_at, COUNT(m.seq) AS messages
		 FROM threads t LEFT JOIN thread_messages m ON m.thread_id = t.id
		 GROUP BY t.id ORDER BY t.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return out, nil
}

// Stats returns storage statistics.
func (s *SQLiteStore) Stats() map[string]any {
	var threads, messages int
	_ = s.db.Get(&threads, `SELECT COUNT(*) FROM threads`)
	_ = s.db.Get(&messages, `SELECT COUNT(*) FROM thread_messages`)
	return map[string]any{
		"backend":       "sqlite",
		"conversations": threads,
		"messages":      messages,
		"max_per_conv":  s.maxMessages,
	}
}
