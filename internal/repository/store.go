// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	GetSession(ctx context.Context, key string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, key string) (*domain.Session, error)
	PurgeSessionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountSessions(ctx context.Context) (int, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	AppendTurn(ctx context.Context, key string, user, assistant *domain.Message) error
	GetMessages(ctx context.Context, key string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, key string) (int, error)
	CountIntents(ctx context.Context) (map[domain.Intent]int, error)
	ListUserMessageContents(ctx context.Context) ([]string, error)

	// Chatbot config operations
	GetChatbotConfig(ctx context.Context) (*domain.ChatbotConfig, error)
	EnsureChatbotConfig(ctx context.Context, defaults *domain.ChatbotConfig) (*domain.ChatbotConfig, error)
	SaveChatbotConfig(ctx context.Context, cfg *domain.ChatbotConfig) error

	// Lifecycle
	Close() error
}

// Open returns the Store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteStore(dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
