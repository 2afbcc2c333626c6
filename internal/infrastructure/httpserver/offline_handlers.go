package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/avatarctic/satcrack-offline/internal/core/domain/cache"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type offlineModeRequest struct {
	Enabled *bool `json:"enabled"`
}

type preloadTopicRequest struct {
	Topic   string `json:"topic"`
	Section string `json:"section"`
}

type preloadLikelyRequest struct {
	Activity []cache.Activity `json:"activity"`
}

type offlineStatsResponse struct {
	cache.StorageStats
	OfflineMode  bool `json:"offlineMode"`
	NeedsRefresh bool `json:"needsRefresh"`
}

func (s *Server) getOfflineMode(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"enabled": s.questionCache.IsOfflineModeEnabled(c.Request().Context())})
}

func (s *Server) setOfflineMode(c echo.Context) error {
	var req offlineModeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	persisted := s.questionCache.SetOfflineMode(c.Request().Context(), *req.Enabled)
	return c.JSON(http.StatusOK, map[string]bool{"enabled": *req.Enabled, "persisted": persisted})
}

func (s *Server) getOfflineStats(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, offlineStatsResponse{
		StorageStats: s.questionCache.OfflineStorageStats(ctx),
		OfflineMode:  s.questionCache.IsOfflineModeEnabled(ctx),
		NeedsRefresh: s.questionCache.NeedsRefresh(ctx, s.config.RefreshMaxAge),
	})
}

func (s *Server) listPreloadedTopics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"topics": s.questionCache.PreloadedTopicKeys(c.Request().Context())})
}

func (s *Server) preloadTopic(c echo.Context) error {
	var req preloadTopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	if req.Section == "" {
		req.Section = question.SectionForTopic(req.Topic)
	}
	ctx := c.Request().Context()
	// Preloading reads the cached bank; make sure one has been loaded.
	if !s.questionCache.HasOfflineData(ctx) {
		if _, err := s.questionLoader.Load(ctx); err != nil {
			return loaderError(err)
		}
	}
	if !s.questionCache.PreloadTopic(ctx, req.Topic, req.Section) {
		return echo.NewHTTPError(http.StatusNotFound, "no questions available for topic")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"key":       cache.TopicKey(req.Section, req.Topic),
		"preloaded": true,
	})
}

func (s *Server) preloadLikelyTopics(c echo.Context) error {
	var req preloadLikelyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ok := s.questionCache.PreloadLikelyTopics(c.Request().Context(), req.Activity)
	return c.JSON(http.StatusOK, map[string]bool{"preloaded": ok})
}

func (s *Server) importQuestions(c echo.Context) error {
	body := c.Request().Body
	defer body.Close()

	n, err := s.questionCache.ImportQuestions(c.Request().Context(), body)
	if err != nil {
		if errors.Is(err, question.ErrInvalidBank) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"questions": n, "ip": c.RealIP()}).Info("question bank imported")
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) clearCaches(c echo.Context) error {
	ok := s.questionCache.ClearAllCaches(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "some caches could not be cleared")
	}
	return c.NoContent(http.StatusNoContent)
}
