package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// likelyTopicsLimit is how many of the most frequent topics get preloaded.
const likelyTopicsLimit = 3

// QuestionCacheConfig groups configuration parameters for the question cache.
type QuestionCacheConfig struct {
	MaxCachedQuestions int
	Now                func() time.Time
}

// QuestionCacheService implements ports.QuestionCacheService on top of a
// ChunkedStore. All in-memory state lives here; nothing is global.
type QuestionCacheService struct {
	store     *ChunkedStore
	decoder   ports.BankDecoder
	maxCached int
	now       func() time.Time
	logger    *logrus.Logger

	// preloadMu serializes read-modify-write of the persisted preload list.
	preloadMu sync.Mutex

	mu          sync.Mutex
	questions   question.Bank
	preloaded   map[string][]question.Question
	index       *recencyIndex
	indexLoaded bool
}

func NewQuestionCacheService(store *ChunkedStore, decoder ports.BankDecoder, cfg *QuestionCacheConfig, logger *logrus.Logger) *QuestionCacheService {
	limit := cache.MaxCachedQuestions
	now := time.Now
	if cfg != nil {
		if cfg.MaxCachedQuestions > 0 {
			limit = cfg.MaxCachedQuestions
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	return &QuestionCacheService{
		store:     store,
		decoder:   decoder,
		maxCached: limit,
		now:       now,
		logger:    logger,
		preloaded: make(map[string][]question.Question),
		index:     newRecencyIndex(),
	}
}

func (s *QuestionCacheService) IsOfflineModeEnabled(ctx context.Context) bool {
	var enabled bool
	if !s.store.Retrieve(ctx, cache.KeyOfflineMode, &enabled) {
		return false
	}
	return enabled
}

func (s *QuestionCacheService) SetOfflineMode(ctx context.Context, enabled bool) bool {
	ok := s.store.Store(ctx, cache.KeyOfflineMode, enabled)
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"enabled": enabled, "persisted": ok}).Info("offline mode changed")
	}
	return ok
}

func (s *QuestionCacheService) HasOfflineData(ctx context.Context) bool {
	if s.store.Exists(ctx, cache.KeyQuestions) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions != nil
}

// OfflineQuestions returns the cached question set, preferring persistent
// storage over the in-memory mirror.
func (s *QuestionCacheService) OfflineQuestions(ctx context.Context) (question.Bank, bool) {
	var bank question.Bank
	if s.store.Retrieve(ctx, cache.KeyQuestions, &bank) && bank != nil {
		return bank, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.questions != nil {
		return s.questions, true
	}
	return nil, false
}

// CacheAllQuestions persists bank and stamps the retrieval time. The bank is
// mirrored in memory whatever the persistence outcome.
func (s *QuestionCacheService) CacheAllQuestions(ctx context.Context, bank question.Bank) bool {
	s.mu.Lock()
	s.questions = bank
	s.mu.Unlock()

	ok := s.store.Store(ctx, cache.KeyQuestions, bank)
	if ok {
		ok = s.store.Store(ctx, cache.KeyTimestamp, s.now().UTC())
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"questions": bank.Count(), "persisted": ok}).Info("question bank cached for offline use")
	}
	return ok
}

// CacheQuestion upserts a single question and evicts the oldest records once
// more than the configured maximum are held.
func (s *QuestionCacheService) CacheQuestion(ctx context.Context, q question.Question, topic, section string) bool {
	if err := q.Validate(); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"question_id": q.ID, "topic": topic}).WithError(err).Warn("question cache: rejecting malformed question")
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndexLocked(ctx)

	id := q.ID
	if id == "" {
		id = fmt.Sprintf("%s_%s_%d", section, topic, s.index.Len())
	}
	s.index.Upsert(&cache.QuestionRecord{
		QuestionID: id,
		Question:   q,
		Topic:      topic,
		Section:    section,
		Timestamp:  s.now().UTC(),
	})
	if evicted := s.index.EvictOver(s.maxCached); len(evicted) > 0 && s.logger != nil {
		s.logger.WithField("evicted", len(evicted)).Debug("question cache: evicted oldest records")
	}
	return s.store.Store(ctx, cache.KeyQuestionCache, recordLog(s.index.Records()))
}

func (s *QuestionCacheService) CachedQuestion(ctx context.Context, id string) (*cache.QuestionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndexLocked(ctx)
	rec, ok := s.index.Get(id)
	if !ok {
		return nil, false
	}
	out := *rec
	return &out, true
}

// CachedQuestionCount returns the number of records in the per-question cache.
func (s *QuestionCacheService) CachedQuestionCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadIndexLocked(ctx)
	return s.index.Len()
}

func (s *QuestionCacheService) loadIndexLocked(ctx context.Context) {
	if s.indexLoaded {
		return
	}
	s.indexLoaded = true
	var log recordLog
	if !s.store.Retrieve(ctx, cache.KeyQuestionCache, &log) {
		return
	}
	for _, rec := range log {
		s.index.Upsert(rec)
	}
	s.index.EvictOver(s.maxCached)
}

// PreloadTopic keeps the questions of topic in memory and records the topic
// key in the persisted preload list.
func (s *QuestionCacheService) PreloadTopic(ctx context.Context, topic, section string) bool {
	bank, ok := s.OfflineQuestions(ctx)
	if !ok {
		return false
	}
	qs := bank.TopicQuestions(topic, section)
	if len(qs) == 0 {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"topic": topic, "section": section}).Debug("preload: no questions for topic")
		}
		return false
	}

	key := cache.TopicKey(section, topic)
	s.mu.Lock()
	s.preloaded[key] = qs
	s.mu.Unlock()

	s.preloadMu.Lock()
	defer s.preloadMu.Unlock()
	keys := s.PreloadedTopicKeys(ctx)
	if slices.Contains(keys, key) {
		return true
	}
	return s.store.Store(ctx, cache.KeyPreloadedTopics, append(keys, key))
}

func (s *QuestionCacheService) PreloadedTopic(topic, section string) ([]question.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs, ok := s.preloaded[cache.TopicKey(section, topic)]
	return qs, ok
}

func (s *QuestionCacheService) PreloadedTopicKeys(ctx context.Context) []string {
	var keys []string
	if !s.store.Retrieve(ctx, cache.KeyPreloadedTopics, &keys) {
		return []string{}
	}
	return keys
}

// PreloadLikelyTopics preloads the most frequent topics of an activity log.
// Equal counts keep the order in which the topics were first seen.
func (s *QuestionCacheService) PreloadLikelyTopics(ctx context.Context, activity []cache.Activity) bool {
	if len(activity) == 0 {
		return false
	}
	type tally struct {
		cache.Activity
		count int
	}
	var order []*tally
	seen := make(map[string]*tally)
	for _, a := range activity {
		if a.Section == "" || a.Topic == "" {
			continue
		}
		key := cache.TopicKey(a.Section, a.Topic)
		t, ok := seen[key]
		if !ok {
			t = &tally{Activity: a}
			seen[key] = t
			order = append(order, t)
		}
		t.count++
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].count > order[j].count })

	for _, t := range order[:min(likelyTopicsLimit, len(order))] {
		s.PreloadTopic(ctx, t.Topic, t.Section)
	}
	return true
}

func (s *QuestionCacheService) OfflineStorageStats(ctx context.Context) cache.StorageStats {
	bank, ok := s.OfflineQuestions(ctx)
	if !ok {
		return cache.StorageStats{StorageUsed: "0 KB"}
	}
	stats := cache.StorageStats{
		TotalQuestions: bank.Count(),
		Topics:         bank.TopicCounts(),
	}
	if data, err := json.Marshal(bank); err == nil {
		stats.Bytes = len(data)
	}
	stats.StorageUsed = cache.FormatBytes(stats.Bytes, 2)

	var cachedAt time.Time
	if s.store.Retrieve(ctx, cache.KeyTimestamp, &cachedAt) {
		stats.CachedAt = &cachedAt
	}
	return stats
}

// NeedsRefresh reports whether the cached set is missing or older than maxAge.
func (s *QuestionCacheService) NeedsRefresh(ctx context.Context, maxAge time.Duration) bool {
	var cachedAt time.Time
	if !s.store.Retrieve(ctx, cache.KeyTimestamp, &cachedAt) {
		return true
	}
	return s.now().Sub(cachedAt) > maxAge
}

// ImportQuestions replaces the cached set with a validated bank read from r.
func (s *QuestionCacheService) ImportQuestions(ctx context.Context, r io.Reader) (int, error) {
	if s.decoder == nil {
		return 0, errors.New("question import is not configured")
	}
	bank, err := s.decoder.DecodeBank(r)
	if err != nil {
		return 0, err
	}
	s.CacheAllQuestions(ctx, bank)
	return bank.Count(), nil
}

// ClearAllCaches drops everything this service owns except the offline flag.
func (s *QuestionCacheService) ClearAllCaches(ctx context.Context) bool {
	ok := true
	s.preloadMu.Lock()
	for _, key := range []string{cache.KeyQuestions, cache.KeyTimestamp, cache.KeyPreloadedTopics, cache.KeyQuestionCache} {
		if !s.store.Remove(ctx, key) {
			ok = false
		}
	}
	s.preloadMu.Unlock()

	s.mu.Lock()
	s.questions = nil
	s.preloaded = make(map[string][]question.Question)
	s.index = newRecencyIndex()
	s.indexLoaded = true
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithField("complete", ok).Info("offline caches cleared")
	}
	return ok
}
