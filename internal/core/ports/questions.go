package ports

import (
	"context"
	"io"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
)

// QuestionSource yields a complete question bank (upstream API or bundled file).
type QuestionSource interface {
	Name() string
	FetchBank(ctx context.Context) (question.Bank, error)
}

// QuestionCacheService manages everything held for offline practice.
type QuestionCacheService interface {
	IsOfflineModeEnabled(ctx context.Context) bool
	SetOfflineMode(ctx context.Context, enabled bool) bool
	HasOfflineData(ctx context.Context) bool
	OfflineQuestions(ctx context.Context) (question.Bank, bool)
	CacheAllQuestions(ctx context.Context, bank question.Bank) bool
	CacheQuestion(ctx context.Context, q question.Question, topic, section string) bool
	CachedQuestion(ctx context.Context, id string) (*cache.QuestionRecord, bool)
	PreloadTopic(ctx context.Context, topic, section string) bool
	PreloadedTopic(topic, section string) ([]question.Question, bool)
	PreloadedTopicKeys(ctx context.Context) []string
	PreloadLikelyTopics(ctx context.Context, activity []cache.Activity) bool
	OfflineStorageStats(ctx context.Context) cache.StorageStats
	NeedsRefresh(ctx context.Context, maxAge time.Duration) bool
	ImportQuestions(ctx context.Context, r io.Reader) (int, error)
	ClearAllCaches(ctx context.Context) bool
}

// QuestionLoaderService resolves the question bank through the fallback chain
// and selects questions from it.
type QuestionLoaderService interface {
	Load(ctx context.Context) (question.Bank, error)
	QuestionForTopic(ctx context.Context, topic, section string) (question.Question, error)
	DailyQuestion(ctx context.Context, day time.Time) (question.Question, error)
	RandomQuestion(ctx context.Context) (question.Question, error)
}

// BankDecoder parses and validates a serialized question bank at the storage
// boundary. Malformed payloads are rejected rather than trusted downstream.
type BankDecoder interface {
	DecodeBank(r io.Reader) (question.Bank, error)
}
