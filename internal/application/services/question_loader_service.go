package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrNoQuestionSource is returned when neither the upstream bank, the offline
// cache nor the bundled file could provide questions.
var ErrNoQuestionSource = errors.New("no question source available")

// QuestionLoaderService resolves the question bank through a fallback chain:
// offline cache (when offline mode is on), upstream, offline cache again,
// then the bundled file.
type QuestionLoaderService struct {
	cache    ports.QuestionCacheService
	upstream ports.QuestionSource
	bundled  ports.QuestionSource
	picker   question.Picker
	logger   *logrus.Logger

	sf singleflight.Group
}

func NewQuestionLoaderService(cache ports.QuestionCacheService, upstream, bundled ports.QuestionSource, picker question.Picker, logger *logrus.Logger) *QuestionLoaderService {
	return &QuestionLoaderService{cache: cache, upstream: upstream, bundled: bundled, picker: picker, logger: logger}
}

// Load returns the current question bank. Concurrent calls share one load.
func (s *QuestionLoaderService) Load(ctx context.Context) (question.Bank, error) {
	res, err, _ := s.sf.Do("bank", func() (any, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	bank, ok := res.(question.Bank)
	if !ok {
		return nil, fmt.Errorf("unexpected type from singleflight result")
	}
	return bank, nil
}

func (s *QuestionLoaderService) load(ctx context.Context) (question.Bank, error) {
	if s.cache.IsOfflineModeEnabled(ctx) && s.cache.HasOfflineData(ctx) {
		if bank, ok := s.cache.OfflineQuestions(ctx); ok {
			return bank, nil
		}
	}

	if s.upstream != nil {
		bank, err := s.upstream.FetchBank(ctx)
		if err == nil {
			s.cache.CacheAllQuestions(ctx, bank)
			return bank, nil
		}
		if s.logger != nil {
			s.logger.WithField("source", s.upstream.Name()).WithError(err).Warn("question loader: upstream unavailable")
		}
	}

	if bank, ok := s.cache.OfflineQuestions(ctx); ok {
		if s.logger != nil {
			s.logger.Info("question loader: serving offline questions")
		}
		return bank, nil
	}

	if s.bundled != nil {
		bank, err := s.bundled.FetchBank(ctx)
		if err == nil {
			s.cache.CacheAllQuestions(ctx, bank)
			if cached, ok := s.cache.OfflineQuestions(ctx); ok {
				return cached, nil
			}
			return bank, nil
		}
		if s.logger != nil {
			s.logger.WithField("source", s.bundled.Name()).WithError(err).Error("question loader: bundled questions unavailable")
		}
	}
	return nil, ErrNoQuestionSource
}

// QuestionForTopic prefers questions preloaded for the topic and otherwise
// selects from the full bank.
func (s *QuestionLoaderService) QuestionForTopic(ctx context.Context, topic, section string) (question.Question, error) {
	if qs, ok := s.cache.PreloadedTopic(topic, section); ok && len(qs) > 0 {
		return question.Bank{section: qs}.QuestionForTopic(topic, section, s.picker), nil
	}
	bank, err := s.Load(ctx)
	if err != nil {
		return question.Question{}, err
	}
	return bank.QuestionForTopic(topic, section, s.picker), nil
}

func (s *QuestionLoaderService) DailyQuestion(ctx context.Context, day time.Time) (question.Question, error) {
	bank, err := s.Load(ctx)
	if err != nil {
		return question.Question{}, err
	}
	return bank.DailyQuestion(day), nil
}

func (s *QuestionLoaderService) RandomQuestion(ctx context.Context) (question.Question, error) {
	bank, err := s.Load(ctx)
	if err != nil {
		return question.Question{}, err
	}
	return bank.RandomQuestion(s.picker), nil
}
