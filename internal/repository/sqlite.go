package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// configRowID is the primary key of the only chatbot_config row.
const configRowID = 1

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			session_key TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_key) REFERENCES sessions(session_key) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, seq)`,
		`CREATE TABLE IF NOT EXISTS chatbot_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			system_prompt TEXT NOT NULL,
			faqs TEXT NOT NULL DEFAULT '[]',
			temperature REAL NOT NULL,
			enabled INTEGER NOT NULL,
			updated_at DATETIME NOT NULL,
			updated_by TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a session by key.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT session_key, created_at, updated_at FROM sessions WHERE session_key = ?`,
		key).Scan(&session.Key, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, key string) (*domain.Session, error) {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_key, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_key) DO NOTHING`,
		key, now, now); err != nil {
		return nil, err
	}
	session, err := s.GetSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s vanished after create", key)
	}
	return session, nil
}

// PurgeSessionsOlderThan deletes sessions, and their messages, not updated since cutoff.
func (s *SQLiteStore) PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_key IN (SELECT session_key FROM sessions WHERE updated_at < ?)`,
		cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// CountSessions returns the number of stored sessions.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// CreateMessage appends a single message and touches its session.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.touchSession(ctx, tx, message.SessionKey, message.CreatedAt); err != nil {
		return err
	}
	if err := s.insertMessage(ctx, tx, message); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendTurn stores a user message and its assistant reply atomically.
func (s *SQLiteStore) AppendTurn(ctx context.Context, key string, user, assistant *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.touchSession(ctx, tx, key, assistant.CreatedAt); err != nil {
		return err
	}
	for _, msg := range []*domain.Message{user, assistant} {
		msg.SessionKey = key
		if err := s.insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) insertMessage(ctx context.Context, tx *sql.Tx, message *domain.Message) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_key, role, content, intent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionKey, message.Role, message.Content, message.Intent, message.CreatedAt.UTC())
	return err
}

// touchSession upserts the session row so a concurrent purge cannot orphan messages.
func (s *SQLiteStore) touchSession(ctx context.Context, tx *sql.Tx, key string, at time.Time) error {
	at = at.UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_key, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, at, at)
	return err
}

// GetMessages retrieves the most recent messages for a session in chronological order.
// A limit <= 0 returns the whole history.
func (s *SQLiteStore) GetMessages(ctx context.Context, key string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_key, role, content, intent, created_at FROM messages WHERE session_key = ? ORDER BY seq DESC`
	args := []interface{}{key}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.MessageID, &msg.SessionKey, &msg.Role, &msg.Content, &msg.Intent, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// CountMessages returns the stored history length of a session.
func (s *SQLiteStore) CountMessages(ctx context.Context, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_key = ?`, key).Scan(&n)
	return n, err
}

// CountIntents counts assistant replies per intent.
func (s *SQLiteStore) CountIntents(ctx context.Context) (map[domain.Intent]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT intent, COUNT(*) FROM messages WHERE role = ? GROUP BY intent`, domain.RoleAssistant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntentCounts(rows)
}

// ListUserMessageContents returns the text of every stored user message.
func (s *SQLiteStore) ListUserMessageContents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM messages WHERE role = ? ORDER BY seq ASC`, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// GetChatbotConfig returns the singleton config, or nil if none exists yet.
func (s *SQLiteStore) GetChatbotConfig(ctx context.Context) (*domain.ChatbotConfig, error) {
	var cfg domain.ChatbotConfig
	var faqs string
	err := s.db.QueryRowContext(ctx,
		`SELECT system_prompt, faqs, temperature, enabled, updated_at, updated_by FROM chatbot_config WHERE id = ?`,
		configRowID).Scan(&cfg.SystemPrompt, &faqs, &cfg.Temperature, &cfg.Enabled, &cfg.UpdatedAt, &cfg.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(faqs), &cfg.FAQs); err != nil {
		return nil, fmt.Errorf("failed to decode faqs: %w", err)
	}
	return &cfg, nil
}

// EnsureChatbotConfig inserts defaults unless a config row already exists,
// then returns the stored row. Concurrent callers always observe one row.
func (s *SQLiteStore) EnsureChatbotConfig(ctx context.Context, defaults *domain.ChatbotConfig) (*domain.ChatbotConfig, error) {
	faqs, err := marshalFAQs(defaults.FAQs)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chatbot_config (id, system_prompt, faqs, temperature, enabled, updated_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		configRowID, defaults.SystemPrompt, faqs, defaults.Temperature, defaults.Enabled, defaults.UpdatedAt.UTC(), defaults.UpdatedBy); err != nil {
		return nil, err
	}
	return s.GetChatbotConfig(ctx)
}

// SaveChatbotConfig overwrites the singleton config.
func (s *SQLiteStore) SaveChatbotConfig(ctx context.Context, cfg *domain.ChatbotConfig) error {
	faqs, err := marshalFAQs(cfg.FAQs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chatbot_config (id, system_prompt, faqs, temperature, enabled, updated_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			system_prompt = excluded.system_prompt,
			faqs = excluded.faqs,
			temperature = excluded.temperature,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		configRowID, cfg.SystemPrompt, faqs, cfg.Temperature, cfg.Enabled, cfg.UpdatedAt.UTC(), cfg.UpdatedBy)
	return err
}

func marshalFAQs(faqs []domain.FAQ) (string, error) {
	if faqs == nil {
		faqs = []domain.FAQ{}
	}
	b, err := json.Marshal(faqs)
	if err != nil {
		return "", fmt.Errorf("failed to encode faqs: %w", err)
	}
	return string(b), nil
}

type intentRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIntentCounts(rows intentRows) (map[domain.Intent]int, error) {
	counts := make(map[domain.Intent]int, len(domain.Intents))
	for _, intent := range domain.Intents {
		counts[intent] = 0
	}
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, err
		}
		counts[domain.ParseIntent(raw)] += n
	}
	return counts, rows.Err()
}
