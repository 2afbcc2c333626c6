package cache

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
)

// Persisted key layout.
const (
	KeyQuestions       = "questions"
	KeyTimestamp       = "questions_timestamp"
	KeyOfflineMode     = "offlineMode"
	KeyPreloadedTopics = "preloadedTopics"
	KeyQuestionCache   = "questionCache"
)

// MaxCachedQuestions bounds the per-question cache.
const MaxCachedQuestions = 100

// ChunkKey names the i-th chunk of an oversized value.
func ChunkKey(key string, i int) string { return fmt.Sprintf("%s_chunk_%d", key, i) }

// ChunkCountKey names the record holding the number of chunks of key.
func ChunkCountKey(key string) string { return key + "_chunks" }

// TopicKey is the "section_topic" key used for preloaded topics.
func TopicKey(section, topic string) string { return section + "_" + topic }

// QuestionRecord is one entry of the per-question cache.
type QuestionRecord struct {
	QuestionID string            `json:"questionId"`
	Question   question.Question `json:"question"`
	Topic      string            `json:"topic"`
	Section    string            `json:"section"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Activity is one entry of a user's recent-activity log.
type Activity struct {
	Section string `json:"section"`
	Topic   string `json:"topic"`
}

// StorageStats summarizes what is held for offline use.
type StorageStats struct {
	TotalQuestions int                       `json:"totalQuestions"`
	StorageUsed    string                    `json:"storageUsed"`
	Bytes          int                       `json:"bytes"`
	Topics         map[string]map[string]int `json:"topics,omitempty"`
	CachedAt       *time.Time                `json:"cachedAt,omitempty"`
}

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders a byte count with 1024-based units, rounding to
// decimals places and trimming trailing zeros (2048 -> "2 KB").
func FormatBytes(bytes int, decimals int) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	if decimals < 0 {
		decimals = 0
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	scale := math.Pow(10, float64(decimals))
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*scale) / scale
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}
