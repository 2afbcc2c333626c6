package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/labstack/echo/v4"
)

type cacheQuestionRequest struct {
	Question question.Question `json:"question"`
	Topic    string            `json:"topic"`
	Section  string            `json:"section"`
}

// loaderError maps question loading failures to HTTP errors.
func loaderError(err error) error {
	if errors.Is(err, services.ErrNoQuestionSource) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (s *Server) listQuestions(c echo.Context) error {
	bank, err := s.questionLoader.Load(c.Request().Context())
	if err != nil {
		return loaderError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"questions": bank,
		"count":     bank.Count(),
		"sections":  bank.Sections(),
	})
}

func (s *Server) getQuestionForTopic(c echo.Context) error {
	topic := strings.TrimSpace(c.QueryParam("topic"))
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic is required")
	}
	section := strings.TrimSpace(c.QueryParam("section"))
	if section == "" {
		section = question.SectionForTopic(topic)
	}
	q, err := s.questionLoader.QuestionForTopic(c.Request().Context(), topic, section)
	if err != nil {
		return loaderError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) getDailyQuestion(c echo.Context) error {
	day := time.Now()
	if raw := c.QueryParam("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		day = parsed
	}
	q, err := s.questionLoader.DailyQuestion(c.Request().Context(), day)
	if err != nil {
		return loaderError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) getRandomQuestion(c echo.Context) error {
	q, err := s.questionLoader.RandomQuestion(c.Request().Context())
	if err != nil {
		return loaderError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (s *Server) getCachedQuestion(c echo.Context) error {
	rec, ok := s.questionCache.CachedQuestion(c.Request().Context(), c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "question not cached")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) cacheQuestion(c echo.Context) error {
	var req cacheQuestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Question.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	persisted := s.questionCache.CacheQuestion(c.Request().Context(), req.Question, req.Topic, req.Section)
	return c.JSON(http.StatusCreated, map[string]any{"cached": true, "persisted": persisted})
}
