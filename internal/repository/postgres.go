package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 30
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_key TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq BIGSERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			session_key TEXT NOT NULL REFERENCES sessions(session_key) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_key, seq)`,
		`CREATE TABLE IF NOT EXISTS chatbot_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			system_prompt TEXT NOT NULL,
			faqs TEXT NOT NULL DEFAULT '[]',
			temperature DOUBLE PRECISION NOT NULL,
			enabled BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			updated_by TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetSession retrieves a session by key, or nil if it does not exist.
func (s *PostgresStore) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	var session domain.Session
	err := s.pool.QueryRow(ctx,
		`SELECT session_key, created_at, updated_at FROM sessions WHERE session_key = $1`,
		key).Scan(&session.Key, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetOrCreateSession returns the session for key, inserting it on first use.
func (s *PostgresStore) GetOrCreateSession(ctx context.Context, key string) (*domain.Session, error) {
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (session_key, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (session_key) DO NOTHING`,
		key, now); err != nil {
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

// PurgeSessionsOlderThan deletes sessions idle since cutoff. Messages go with
// them through ON DELETE CASCADE.
func (s *PostgresStore) PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountSessions returns the number of stored sessions.
func (s *PostgresStore) CountSessions(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// CreateMessage appends a single message and touches its session.
func (s *PostgresStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := touchSessionPg(ctx, tx, message.SessionKey, message.CreatedAt); err != nil {
			return err
		}
		return insertMessagePg(ctx, tx, message)
	})
}

// AppendTurn stores a user message and its assistant reply in one transaction.
func (s *PostgresStore) AppendTurn(ctx context.Context, key string, user, assistant *domain.Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := touchSessionPg(ctx, tx, key, assistant.CreatedAt); err != nil {
			return err
		}
		for _, msg := range []*domain.Message{user, assistant} {
			msg.SessionKey = key
			if err := insertMessagePg(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertMessagePg(ctx context.Context, tx pgx.Tx, message *domain.Message) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO messages (message_id, session_key, role, content, intent, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		message.MessageID, message.SessionKey, string(message.Role), message.Content, string(message.Intent), message.CreatedAt.UTC())
	return err
}

func touchSessionPg(ctx context.Context, tx pgx.Tx, key string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO sessions (session_key, created_at, updated_at) VALUES ($1, $2, $2)
		 ON CONFLICT (session_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, at.UTC())
	return err
}

// GetMessages returns the newest limit messages of a session in chronological
// order. A limit <= 0 returns the whole history.
func (s *PostgresStore) GetMessages(ctx context.Context, key string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_key, role, content, intent, created_at FROM messages WHERE session_key = $1 ORDER BY seq DESC`
	args := []any{key}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, intent string
		if err := rows.Scan(&msg.MessageID, &msg.SessionKey, &role, &msg.Content, &intent, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		msg.Intent = domain.Intent(intent)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

// CountMessages returns the stored history length of a session.
func (s *PostgresStore) CountMessages(ctx context.Context, key string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE session_key = $1`, key).Scan(&n)
	return n, err
}

// CountIntents counts assistant replies per intent.
func (s *PostgresStore) CountIntents(ctx context.Context) (map[domain.Intent]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT intent, COUNT(*) FROM messages WHERE role = $1 GROUP BY intent`, string(domain.RoleAssistant))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntentCounts(rows)
}

// ListUserMessageContents returns the text of every stored user message.
func (s *PostgresStore) ListUserMessageContents(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM messages WHERE role = $1 ORDER BY seq ASC`, string(domain.RoleUser))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetChatbotConfig returns the singleton config, or nil if none exists yet.
func (s *PostgresStore) GetChatbotConfig(ctx context.Context) (*domain.ChatbotConfig, error) {
	var cfg domain.ChatbotConfig
	var faqs string
	err := s.pool.QueryRow(ctx,
		`SELECT system_prompt, faqs, temperature, enabled, updated_at, updated_by FROM chatbot_config WHERE id = $1`,
		configRowID).Scan(&cfg.SystemPrompt, &faqs, &cfg.Temperature, &cfg.Enabled, &cfg.UpdatedAt, &cfg.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
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

// EnsureChatbotConfig inserts defaults unless a config row already exists and
// returns the stored row.
func (s *PostgresStore) EnsureChatbotConfig(ctx context.Context, defaults *domain.ChatbotConfig) (*domain.ChatbotConfig, error) {
	faqs, err := marshalFAQs(defaults.FAQs)
	if err != nil {
		return nil, err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO chatbot_config (id, system_prompt, faqs, temperature, enabled, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		configRowID, defaults.SystemPrompt, faqs, defaults.Temperature, defaults.Enabled, defaults.UpdatedAt.UTC(), defaults.UpdatedBy); err != nil {
		return nil, err
	}
	return s.GetChatbotConfig(ctx)
}

// SaveChatbotConfig overwrites the singleton config.
func (s *PostgresStore) SaveChatbotConfig(ctx context.Context, cfg *domain.ChatbotConfig) error {
	faqs, err := marshalFAQs(cfg.FAQs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chatbot_config (id, system_prompt, faqs, temperature, enabled, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			system_prompt = excluded.system_prompt,
			faqs = excluded.faqs,
			temperature = excluded.temperature,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		configRowID, cfg.SystemPrompt, faqs, cfg.Temperature, cfg.Enabled, cfg.UpdatedAt.UTC(), cfg.UpdatedBy)
	return err
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
