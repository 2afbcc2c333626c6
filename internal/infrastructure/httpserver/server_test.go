package httpserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	config "github.com/avatarctic/satcrack-offline/configs"
	"github.com/avatarctic/satcrack-offline/internal/application/services"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/offline"
	"github.com/avatarctic/satcrack-offline/internal/core/domain/question"
	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/notify"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/questionbank"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/repositories"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/statemachine"
	"github.com/avatarctic/satcrack-offline/test/mocks"
)

const siteOrigin = "https://satcrack.example"

func testQuestion(id, domain string) question.Question {
	return question.Question{
		ID:     id,
		Domain: domain,
		Body: question.Body{
			Question:      "Question " + id,
			Choices:       map[string]string{"A": "1", "B": "2"},
			CorrectAnswer: "A",
		},
	}
}

func testBank() question.Bank {
	return question.Bank{
		question.SectionMath: {
			testQuestion("m1", question.DomainAlgebra),
			testQuestion("m2", question.DomainGeometry),
		},
		question.SectionEnglish: {
			testQuestion("e1", question.DomainCraftAndStructure),
		},
	}
}

type testServer struct {
	ts         *httptest.Server
	cache      *services.QuestionCacheService
	controller *services.OfflineController
	auth       *services.AuthService
	offlineNet atomic.Bool

	mu       sync.Mutex
	lastBody []byte
}

type serverOptions struct {
	withoutAuth bool
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s := &testServer{}

	validator, err := questionbank.NewValidator("", logger)
	require.NoError(t, err)
	store := services.NewChunkedStore(&mocks.KVBackendMock{}, nil, nil, logger)
	s.cache = services.NewQuestionCacheService(store, validator, nil, logger)

	site := map[string]string{
		"/":               "<html>home</html>",
		"/css/styles.css": "body{}",
		"/practice.html":  "<html>practice</html>",
	}
	network := &mocks.FetcherMock{FetchFn: func(ctx context.Context, req *offline.Request) (*offline.CachedResponse, error) {
		if s.offlineNet.Load() {
			return nil, context.DeadlineExceeded
		}
		if req.Method == http.MethodPost {
			s.mu.Lock()
			s.lastBody = req.Body
			s.mu.Unlock()
			return &offline.CachedResponse{Status: http.StatusCreated, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"saved":true}`)}, nil
		}
		body, found := site[req.URL.Path]
		if !found {
			return &offline.CachedResponse{Status: http.StatusNotFound, Body: []byte("not found")}, nil
		}
		return &offline.CachedResponse{Status: http.StatusOK, Header: http.Header{"Content-Type": {"text/html"}, "Content-Length": {"99"}}, Body: []byte(body)}, nil
	}}

	origin, err := url.Parse(siteOrigin)
	require.NoError(t, err)
	lifecycle, err := statemachine.NewLifecycle(logger)
	require.NoError(t, err)
	t.Cleanup(lifecycle.Stop)
	hub := notify.NewHub(4, logger)
	s.controller = services.NewOfflineController(network, repositories.NewMemoryGenerationRepository(), lifecycle, hub, nil, &services.OfflineControllerConfig{
		Version:         "test-v1",
		Scope:           offline.Scope{Origin: origin},
		CriticalAssets:  []string{"/", "/css/styles.css"},
		OfflineDocument: "/offline.html",
	}, logger)
	t.Cleanup(s.controller.Close)

	upstream := &mocks.QuestionSourceMock{FetchBankFn: func(ctx context.Context) (question.Bank, error) {
		return testBank(), nil
	}}
	loader := services.NewQuestionLoaderService(s.cache, upstream, nil, nil, logger)

	deps := httpserver.ServerDeps{
		QuestionCache:     s.cache,
		QuestionLoader:    loader,
		OfflineController: s.controller,
		Events:            hub,
	}
	if !opts.withoutAuth {
		s.auth = services.NewAuthService(&config.AdminConfig{JWTSecret: "test-secret"}, logger)
		deps.AuthService = s.auth
	}
	srv := httpserver.NewServer(&httpserver.ServerConfig{Origin: origin, EventsHeartbeat: 50 * time.Millisecond}, logger, deps)
	s.ts = httptest.NewServer(srv.Echo())
	t.Cleanup(s.ts.Close)
	return s
}

func (s *testServer) token(t *testing.T) string {
	t.Helper()
	tok, err := s.auth.GenerateToken(context.Background(), "tester", time.Minute)
	require.NoError(t, err)
	return tok.AccessToken
}

func (s *testServer) do(t *testing.T, method, path string, body any, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth_ReportsWorkerState(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	resp, body := s.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[map[string]any](t, body)
	require.Equal(t, "healthy", health["status"])
	worker := health["worker"].(map[string]any)
	require.Equal(t, "parsed", worker["state"])
	require.Equal(t, "test-v1", worker["generation"])
}

func TestQuestions_Endpoints(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	resp, body := s.do(t, http.MethodGet, "/api/v1/questions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[map[string]any](t, body)
	require.EqualValues(t, 3, list["count"])
	require.Equal(t, []any{"english", "math"}, list["sections"])

	resp, _ = s.do(t, http.MethodGet, "/api/v1/questions/topic", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/questions/topic?topic=algebra", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "m1", decode[question.Question](t, body).ID)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/questions/daily?date=17-05-2024", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/questions/daily?date=2024-05-17", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	day, _ := time.Parse(time.DateOnly, "2024-05-17")
	require.Equal(t, testBank().DailyQuestion(day).ID, decode[question.Question](t, body).ID)

	resp, body = s.do(t, http.MethodGet, "/api/v1/questions/random", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	random := decode[question.Question](t, body)
	require.NoError(t, random.Validate())
}

func TestQuestions_PerQuestionCache(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	payload := map[string]any{"question": testQuestion("q-77", question.DomainAlgebra), "topic": "Algebra", "section": "math"}
	resp, body := s.do(t, http.MethodPost, "/api/v1/questions/cached", payload, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, decode[map[string]any](t, body)["persisted"])

	resp, body = s.do(t, http.MethodGet, "/api/v1/questions/cached/q-77", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Algebra", decode[map[string]any](t, body)["topic"])

	resp, _ = s.do(t, http.MethodGet, "/api/v1/questions/cached/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	bad := testQuestion("bad", question.DomainAlgebra)
	bad.Body.CorrectAnswer = "Z"
	resp, _ = s.do(t, http.MethodPost, "/api/v1/questions/cached", map[string]any{"question": bad}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestOffline_ModeAndStats(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	resp, _ := s.do(t, http.MethodPut, "/api/v1/offline/mode", map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPut, "/api/v1/offline/mode", map[string]bool{"enabled": true}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := s.do(t, http.MethodGet, "/api/v1/offline/mode", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]bool{"enabled": true}, decode[map[string]bool](t, body))

	resp, body = s.do(t, http.MethodGet, "/api/v1/offline/stats", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, body)
	require.EqualValues(t, 0, stats["totalQuestions"])
	require.Equal(t, "0 KB", stats["storageUsed"])
	require.Equal(t, true, stats["needsRefresh"])
	require.Equal(t, true, stats["offlineMode"])
}

func TestOffline_Preload(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	resp, _ := s.do(t, http.MethodPost, "/api/v1/offline/preload", map[string]string{"topic": " "}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/v1/offline/preload", map[string]string{"topic": question.DomainAlgebra}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "math_Algebra", decode[map[string]any](t, body)["key"])

	resp, _ = s.do(t, http.MethodPost, "/api/v1/offline/preload", map[string]string{"topic": "Poetry", "section": "math"}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	activity := map[string]any{"activity": []map[string]string{
		{"section": "english", "topic": question.DomainCraftAndStructure},
	}}
	resp, _ = s.do(t, http.MethodPost, "/api/v1/offline/preload/likely", activity, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/offline/preload", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []any{"math_Algebra", "english_Craft and Structure"}, decode[map[string]any](t, body)["topics"])
}

func TestOffline_AdminRoutes(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	bank := `{"math": [{"id": "i1", "domain": "Algebra", "question": {"question": "2+2?", "choices": {"A": "4", "B": "5"}, "correct_answer": "A"}}]}`

	resp, _ := s.do(t, http.MethodPost, "/api/v1/offline/import", bank, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/offline/import", `{"math": "nope"}`, bearer(s.token(t)))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/v1/offline/import", bank, bearer(s.token(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]int{"imported": 1}, decode[map[string]int](t, body))
	require.True(t, s.cache.HasOfflineData(context.Background()))

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/offline/cache", nil, bearer(s.token(t)))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.False(t, s.cache.HasOfflineData(context.Background()))
}

func TestOffline_AdminRoutesWithoutSecret(t *testing.T) {
	s := newTestServer(t, serverOptions{withoutAuth: true})
	resp, _ := s.do(t, http.MethodDelete, "/api/v1/offline/cache", nil, bearer("anything"))
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWorker_Lifecycle(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	resp, _ := s.do(t, http.MethodPost, "/api/v1/worker/install", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, http.MethodPost, "/api/v1/worker/install", nil, bearer(s.token(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "installed", decode[map[string]string](t, body)["state"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/worker/activate", nil, bearer(s.token(t)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "activated", decode[map[string]string](t, body)["state"])

	resp, _ = s.do(t, http.MethodPost, "/api/v1/worker/activate", nil, bearer(s.token(t)))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, http.MethodGet, "/api/v1/worker/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]string{"state": "activated", "version": "test-v1"}, decode[map[string]string](t, body))
}

func TestProxy_PassthroughBeforeActivation(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	resp, body := s.do(t, http.MethodGet, "/practice.html", nil, map[string]string{"Accept": "text/html"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>practice</html>", string(body))
	require.Equal(t, string(offline.StrategyNetworkOnly), resp.Header.Get("X-Offline-Strategy"))

	resp, _ = s.do(t, http.MethodGet, "/missing.png", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProxy_ServesFromCacheWhenOffline(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	require.NoError(t, s.controller.Start(context.Background()))
	html := map[string]string{"Accept": "text/html"}

	resp, _ := s.do(t, http.MethodGet, "/practice.html", nil, html)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(offline.StrategyNetworkFirst), resp.Header.Get("X-Offline-Strategy"))
	s.controller.Wait()

	s.offlineNet.Store(true)

	resp, body := s.do(t, http.MethodGet, "/practice.html", nil, html)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>practice</html>", string(body))
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))

	resp, body = s.do(t, http.MethodGet, "/css/styles.css", nil, map[string]string{"Accept": "text/css"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "body{}", string(body))
	require.Equal(t, string(offline.StrategyCacheFirst), resp.Header.Get("X-Offline-Strategy"))

	resp, _ = s.do(t, http.MethodGet, "/never-visited.html", nil, html)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/img/logo.png", nil, nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	s.controller.Wait()
}

func TestProxy_ForwardsBodyWithoutCredentials(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	require.NoError(t, s.controller.Start(context.Background()))

	resp, body := s.do(t, http.MethodPost, "/api/progress", `{"score":7}`, bearer("secret"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, `{"saved":true}`, string(body))
	require.Equal(t, string(offline.StrategyNetworkOnly), resp.Header.Get("X-Offline-Strategy"))

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, `{"score":7}`, string(s.lastBody))
}

func TestWorker_EventsStreamSyncRequests(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ts.URL+"/api/v1/worker/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	syncResp, body := s.do(t, http.MethodPost, "/api/v1/worker/sync", map[string]string{"tag": offline.SyncTagUserData}, nil)
	require.Equal(t, http.StatusAccepted, syncResp.StatusCode)
	require.EqualValues(t, 1, decode[map[string]any](t, body)["notified"])

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	require.Equal(t, offline.Message{Type: offline.MessageSyncRequired}, decode[offline.Message](t, []byte(data)))
}

func TestWorker_EventsUnavailableWithoutSubscriber(t *testing.T) {
	srv := httpserver.NewServer(nil, nil, httpserver.ServerDeps{})
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/worker/events", nil))
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

var _ ports.OfflineController = (*services.OfflineController)(nil)
