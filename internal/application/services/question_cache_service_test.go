package services_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/avatarctic/satcrack-offline/test/mocks"
	"github.com/stretchr/testify/require"
)

type cacheFixture struct {
	backend *mocks.KVBackendMock
	clock   *fakeClock
	svc     *services.QuestionCacheService
}

func newCacheFixture(maxCached int, decoder *mocks.BankDecoderMock) *cacheFixture {
	f := &cacheFixture{backend: &mocks.KVBackendMock{}, clock: newFakeClock()}
	f.svc = f.service(maxCached, decoder)
	return f
}

// service builds another service over the same backend, as a restart would.
func (f *cacheFixture) service(maxCached int, decoder *mocks.BankDecoderMock) *services.QuestionCacheService {
	store := services.NewChunkedStore(f.backend, nil, nil, nil)
	cfg := &services.QuestionCacheConfig{MaxCachedQuestions: maxCached, Now: f.clock.Now}
	if decoder == nil {
		return services.NewQuestionCacheService(store, nil, cfg, nil)
	}
	return services.NewQuestionCacheService(store, decoder, cfg, nil)
}

func TestQuestionCache_OfflineModeDefaultsOff(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.False(t, f.svc.IsOfflineModeEnabled(ctx))
	require.True(t, f.svc.SetOfflineMode(ctx, true))
	require.True(t, f.svc.IsOfflineModeEnabled(ctx))
	require.True(t, f.svc.SetOfflineMode(ctx, false))
	require.False(t, f.svc.IsOfflineModeEnabled(ctx))
}

func TestQuestionCache_CacheAllQuestions(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.False(t, f.svc.HasOfflineData(ctx))
	_, ok := f.svc.OfflineQuestions(ctx)
	require.False(t, ok)

	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))
	require.True(t, f.svc.HasOfflineData(ctx))

	bank, ok := f.svc.OfflineQuestions(ctx)
	require.True(t, ok)
	require.Equal(t, 5, bank.Count())

	_, ok = f.backend.Raw(cache.KeyTimestamp)
	require.True(t, ok)
}

func TestQuestionCache_EvictsOldestOverLimit(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(3, nil)

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("q%d", i)
		require.True(t, f.svc.CacheQuestion(ctx, newQuestion(id, question.DomainAlgebra), "Algebra", "math"))
		f.clock.Advance(time.Second)
	}

	require.Equal(t, 3, f.svc.CachedQuestionCount(ctx))
	_, ok := f.svc.CachedQuestion(ctx, "q1")
	require.False(t, ok)
	rec, ok := f.svc.CachedQuestion(ctx, "q4")
	require.True(t, ok)
	require.Equal(t, "Algebra", rec.Topic)
	require.Equal(t, "math", rec.Section)
}

func TestQuestionCache_DefaultLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	for i := 1; i <= 150; i++ {
		id := fmt.Sprintf("q%d", i)
		require.True(t, f.svc.CacheQuestion(ctx, newQuestion(id, question.DomainAlgebra), "Algebra", "math"))
		f.clock.Advance(time.Second)
	}

	require.Equal(t, cache.MaxCachedQuestions, f.svc.CachedQuestionCount(ctx))
	for i := 1; i <= 150; i++ {
		_, ok := f.svc.CachedQuestion(ctx, fmt.Sprintf("q%d", i))
		require.Equal(t, i > 50, ok, "q%d", i)
	}
	require.Equal(t, cache.MaxCachedQuestions, f.service(0, nil).CachedQuestionCount(ctx))
}

func TestQuestionCache_ConcurrentPreloadsKeepEveryKey(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)
	f.backend.GetFn = func(ctx context.Context, key string) ([]byte, bool, error) {
		v, ok := f.backend.Raw(key)
		if key == cache.KeyPreloadedTopics {
			time.Sleep(20 * time.Millisecond)
		}
		return v, ok, nil
	}

	bank := question.Bank{}
	var want []string
	for i := 0; i < 8; i++ {
		domain := fmt.Sprintf("D%d", i)
		bank[question.SectionMath] = append(bank[question.SectionMath], newQuestion("m"+domain, domain))
		want = append(want, cache.TopicKey(question.SectionMath, domain))
	}
	require.True(t, f.svc.CacheAllQuestions(ctx, bank))

	var wg sync.WaitGroup
	results := make([]bool, len(want))
	for i := range want {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.PreloadTopic(ctx, fmt.Sprintf("D%d", i), question.SectionMath)
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		require.True(t, ok, "D%d", i)
	}
	require.ElementsMatch(t, want, f.svc.PreloadedTopicKeys(ctx))
}

func TestQuestionCache_EqualTimestampsEvictInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(3, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, f.svc.CacheQuestion(ctx, newQuestion(id, question.DomainAlgebra), "Algebra", "math"))
	}
	// Re-caching moves "a" behind "c".
	require.True(t, f.svc.CacheQuestion(ctx, newQuestion("a", question.DomainAlgebra), "Algebra", "math"))
	require.True(t, f.svc.CacheQuestion(ctx, newQuestion("d", question.DomainAlgebra), "Algebra", "math"))

	_, ok := f.svc.CachedQuestion(ctx, "b")
	require.False(t, ok)
	for _, id := range []string{"a", "c", "d"} {
		_, ok := f.svc.CachedQuestion(ctx, id)
		require.True(t, ok, id)
	}
}

func TestQuestionCache_IndexOrderSurvivesReload(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(10, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, f.svc.CacheQuestion(ctx, newQuestion(id, question.DomainAlgebra), "Algebra", "math"))
	}

	reloaded := f.service(2, nil)
	require.Equal(t, 2, reloaded.CachedQuestionCount(ctx))
	_, ok := reloaded.CachedQuestion(ctx, "a")
	require.False(t, ok)
	_, ok = reloaded.CachedQuestion(ctx, "c")
	require.True(t, ok)
}

func TestQuestionCache_RejectsMalformedQuestion(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	q := newQuestion("bad", question.DomainAlgebra)
	q.Body.Choices = nil
	require.False(t, f.svc.CacheQuestion(ctx, q, "Algebra", "math"))
	require.Equal(t, 0, f.svc.CachedQuestionCount(ctx))
}

func TestQuestionCache_GeneratesIDWhenMissing(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.True(t, f.svc.CacheQuestion(ctx, newQuestion("", question.DomainAlgebra), "Algebra", "math"))
	_, ok := f.svc.CachedQuestion(ctx, "math_Algebra_0")
	require.True(t, ok)
}

func TestQuestionCache_PreloadTopicIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.False(t, f.svc.PreloadTopic(ctx, "Algebra", "math"), "no bank cached yet")
	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))

	require.True(t, f.svc.PreloadTopic(ctx, "Algebra", "math"))
	require.True(t, f.svc.PreloadTopic(ctx, "Algebra", "math"))
	require.Equal(t, []string{"math_Algebra"}, f.svc.PreloadedTopicKeys(ctx))

	qs, ok := f.svc.PreloadedTopic("Algebra", "math")
	require.True(t, ok)
	require.Len(t, qs, 2)

	require.False(t, f.svc.PreloadTopic(ctx, "Poetry", "math"))
	require.Equal(t, []string{"math_Algebra"}, f.svc.PreloadedTopicKeys(ctx))
}

func TestQuestionCache_PreloadLikelyTopics(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)
	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))

	require.False(t, f.svc.PreloadLikelyTopics(ctx, nil))

	activity := mocks.ActivityLog(
		"english", "Standard English Conventions",
		"math", "Geometry and Trigonometry",
		"math", "Algebra",
		"math", "Algebra",
		"english", "Craft and Structure",
		"math", "Geometry and Trigonometry",
		"math", "Algebra",
	)
	require.True(t, f.svc.PreloadLikelyTopics(ctx, activity))
	require.Equal(t, []string{
		"math_Algebra",
		"math_Geometry and Trigonometry",
		"english_Standard English Conventions",
	}, f.svc.PreloadedTopicKeys(ctx))

	_, ok := f.svc.PreloadedTopic("Craft and Structure", "english")
	require.False(t, ok)
}

func TestQuestionCache_StorageStats(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	empty := f.svc.OfflineStorageStats(ctx)
	require.Equal(t, 0, empty.TotalQuestions)
	require.Equal(t, "0 KB", empty.StorageUsed)
	require.Nil(t, empty.CachedAt)

	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))
	stats := f.svc.OfflineStorageStats(ctx)
	require.Equal(t, 5, stats.TotalQuestions)
	require.Positive(t, stats.Bytes)
	require.Equal(t, cache.FormatBytes(stats.Bytes, 2), stats.StorageUsed)
	require.Equal(t, 2, stats.Topics["math"][question.DomainAlgebra])
	require.NotNil(t, stats.CachedAt)
	require.True(t, stats.CachedAt.Equal(f.clock.Now()))
}

func TestQuestionCache_NeedsRefresh(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.True(t, f.svc.NeedsRefresh(ctx, time.Hour))
	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))
	require.False(t, f.svc.NeedsRefresh(ctx, time.Hour))

	f.clock.Advance(2 * time.Hour)
	require.True(t, f.svc.NeedsRefresh(ctx, time.Hour))
}

func TestQuestionCache_ClearKeepsOfflineFlag(t *testing.T) {
	ctx := context.Background()
	f := newCacheFixture(0, nil)

	require.True(t, f.svc.SetOfflineMode(ctx, true))
	require.True(t, f.svc.CacheAllQuestions(ctx, sampleBank()))
	require.True(t, f.svc.PreloadTopic(ctx, "Algebra", "math"))
	require.True(t, f.svc.CacheQuestion(ctx, newQuestion("x", question.DomainAlgebra), "Algebra", "math"))

	require.True(t, f.svc.ClearAllCaches(ctx))

	require.False(t, f.svc.HasOfflineData(ctx))
	require.Empty(t, f.svc.PreloadedTopicKeys(ctx))
	require.Equal(t, 0, f.svc.CachedQuestionCount(ctx))
	_, ok := f.svc.PreloadedTopic("Algebra", "math")
	require.False(t, ok)
	require.True(t, f.svc.IsOfflineModeEnabled(ctx))
	require.Equal(t, 1, f.backend.Keys())
}

func TestQuestionCache_ImportQuestions(t *testing.T) {
	ctx := context.Background()
	decoder := &mocks.BankDecoderMock{
		DecodeBankFn: func(r io.Reader) (question.Bank, error) {
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, "payload", string(data))
			return sampleBank(), nil
		},
	}
	f := newCacheFixture(0, decoder)

	n, err := f.svc.ImportQuestions(ctx, strings.NewReader("payload"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.True(t, f.svc.HasOfflineData(ctx))

	rejecting := newCacheFixture(0, &mocks.BankDecoderMock{})
	_, err = rejecting.svc.ImportQuestions(ctx, strings.NewReader("{}"))
	require.ErrorIs(t, err, question.ErrInvalidBank)
	require.False(t, rejecting.svc.HasOfflineData(ctx))

	unconfigured := newCacheFixture(0, nil)
	_, err = unconfigured.svc.ImportQuestions(ctx, strings.NewReader("{}"))
	require.Error(t, err)
}
