package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/sirupsen/logrus"
)

// ChunkedStoreConfig groups the size limits of the chunked store.
type ChunkedStoreConfig struct {
	ChunkSize    int
	Threshold    int
	MaxChunkScan int
}

// ChunkedStore persists JSON values that may exceed a per-entry size limit by
// splitting them across sequentially keyed slots. Storage failures never
// reach the caller: they are logged and the value is kept in memory instead.
type ChunkedStore struct {
	backend      ports.KVBackend
	chunkSize    int
	threshold    int
	maxChunkScan int
	logger       *logrus.Logger
	metrics      ports.OfflineMetrics

	mu       sync.RWMutex
	fallback map[string][]byte
}

func NewChunkedStore(backend ports.KVBackend, cfg *ChunkedStoreConfig, metrics ports.OfflineMetrics, logger *logrus.Logger) *ChunkedStore {
	// Apply defaults
	cs := 1 << 20
	th := 4 << 20
	scan := 20
	if cfg != nil {
		if cfg.ChunkSize > 0 {
			cs = cfg.ChunkSize
		}
		if cfg.Threshold > 0 {
			th = cfg.Threshold
		}
		if cfg.MaxChunkScan > 0 {
			scan = cfg.MaxChunkScan
		}
	}
	if metrics == nil {
		metrics = ports.NopOfflineMetrics{}
	}
	return &ChunkedStore{
		backend:      backend,
		chunkSize:    cs,
		threshold:    th,
		maxChunkScan: scan,
		logger:       logger,
		metrics:      metrics,
		fallback:     make(map[string][]byte),
	}
}

// Store serializes value under key, chunking it when it is larger than the
// threshold. It reports whether the value reached persistent storage.
func (s *ChunkedStore) Store(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("key", key).WithError(err).Error("chunked store: failed to serialize value")
		}
		return false
	}
	if err := s.write(ctx, key, data); err != nil {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"key": key, "bytes": len(data)}).WithError(err).Warn("chunked store: write failed, keeping value in memory")
		}
		s.metrics.StorageFallback("store")
		s.mu.Lock()
		s.fallback[key] = data
		s.mu.Unlock()
		return false
	}
	s.mu.Lock()
	delete(s.fallback, key)
	s.mu.Unlock()
	return true
}

func (s *ChunkedStore) write(ctx context.Context, key string, data []byte) error {
	if err := s.clearChunks(ctx, key); err != nil {
		return err
	}
	if len(data) <= s.threshold {
		return s.backend.Set(ctx, key, data)
	}

	// A direct value left behind would be shadowed by the chunks anyway.
	if err := s.backend.Delete(ctx, key); err != nil {
		return err
	}
	chunks := (len(data) + s.chunkSize - 1) / s.chunkSize
	for i := range chunks {
		end := min((i+1)*s.chunkSize, len(data))
		if err := s.backend.Set(ctx, cache.ChunkKey(key, i), data[i*s.chunkSize:end]); err != nil {
			return err
		}
	}
	// The count record goes last so a partial write is never readable.
	if err := s.backend.Set(ctx, cache.ChunkCountKey(key), []byte(strconv.Itoa(chunks))); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "chunks": chunks, "bytes": len(data)}).Debug("chunked store: value stored in chunks")
	}
	return nil
}

// clearChunks drops the count record and every chunk of key, scanning at most
// maxChunkScan slots and stopping at the first absent one.
func (s *ChunkedStore) clearChunks(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, cache.ChunkCountKey(key)); err != nil {
		return err
	}
	for i := range s.maxChunkScan {
		ck := cache.ChunkKey(key, i)
		_, ok, err := s.backend.Get(ctx, ck)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := s.backend.Delete(ctx, ck); err != nil {
			return err
		}
	}
	return nil
}

// Retrieve decodes the value stored under key into dest. A chunked value with
// any chunk missing is reported as absent; no partial value is ever decoded.
func (s *ChunkedStore) Retrieve(ctx context.Context, key string, dest any) bool {
	data, ok := s.load(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		if s.logger != nil {
			s.logger.WithField("key", key).WithError(err).Error("chunked store: stored value is not valid JSON")
		}
		return false
	}
	return true
}

// Size returns the serialized size of the value under key.
func (s *ChunkedStore) Size(ctx context.Context, key string) (int, bool) {
	data, ok := s.load(ctx, key)
	return len(data), ok
}

func (s *ChunkedStore) load(ctx context.Context, key string) ([]byte, bool) {
	data, found, err := s.read(ctx, key)
	if errors.Is(err, errIncompleteValue) {
		return nil, false
	}
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("key", key).WithError(err).Warn("chunked store: read failed, using in-memory copy")
		}
		s.metrics.StorageFallback("retrieve")
		return s.memory(key)
	}
	if found {
		return data, true
	}
	return s.memory(key)
}

// errIncompleteValue marks a chunked value that can no longer be reassembled.
var errIncompleteValue = errors.New("chunked value incomplete")

func (s *ChunkedStore) read(ctx context.Context, key string) ([]byte, bool, error) {
	countRaw, ok, err := s.backend.Get(ctx, cache.ChunkCountKey(key))
	if err != nil {
		return nil, false, err
	}
	if ok {
		data, complete, err := s.readChunks(ctx, key, countRaw)
		if err != nil {
			return nil, false, err
		}
		if !complete {
			// Fail closed: the memory copy must not resurrect a broken value either.
			return nil, false, errIncompleteValue
		}
		return data, true, nil
	}
	return s.backend.Get(ctx, key)
}

func (s *ChunkedStore) readChunks(ctx context.Context, key string, countRaw []byte) ([]byte, bool, error) {
	count, err := strconv.Atoi(string(countRaw))
	if err != nil || count <= 0 {
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"key": key, "count": string(countRaw)}).Warn("chunked store: corrupt chunk count")
		}
		return nil, false, nil
	}
	var buf []byte
	for i := range count {
		chunk, ok, err := s.backend.Get(ctx, cache.ChunkKey(key, i))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{"key": key, "chunk": i, "count": count}).Warn("chunked store: missing chunk")
			}
			return nil, false, nil
		}
		buf = append(buf, chunk...)
	}
	return buf, true, nil
}

func (s *ChunkedStore) memory(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.fallback[key]
	return data, ok
}

// Exists reports whether key has a persisted value (direct or chunked) or an
// in-memory copy. It does not check that every chunk is present.
func (s *ChunkedStore) Exists(ctx context.Context, key string) bool {
	if _, ok := s.memory(key); ok {
		return true
	}
	for _, k := range []string{key, cache.ChunkCountKey(key)} {
		_, ok, err := s.backend.Get(ctx, k)
		if err != nil {
			if s.logger != nil {
				s.logger.WithField("key", k).WithError(err).Warn("chunked store: existence check failed")
			}
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

// Remove deletes key, its chunks and any in-memory copy.
func (s *ChunkedStore) Remove(ctx context.Context, key string) bool {
	s.mu.Lock()
	delete(s.fallback, key)
	s.mu.Unlock()

	ok := true
	if countRaw, found, err := s.backend.Get(ctx, cache.ChunkCountKey(key)); err == nil && found {
		if n, convErr := strconv.Atoi(string(countRaw)); convErr == nil {
			for i := range n {
				if err := s.backend.Delete(ctx, cache.ChunkKey(key, i)); err != nil {
					ok = false
				}
			}
		}
	}
	if err := s.clearChunks(ctx, key); err != nil {
		ok = false
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		ok = false
	}
	if !ok && s.logger != nil {
		s.logger.WithField("key", key).Warn("chunked store: remove incomplete")
	}
	return ok
}
