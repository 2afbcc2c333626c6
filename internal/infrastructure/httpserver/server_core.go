package httpserver

import (
	"net/url"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	customMiddleware "github.com/avatarctic/satcrack-offline/internal/infrastructure/httpserver/middleware"
	"github.com/avatarctic/satcrack-offline/internal/infrastructure/notify"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	TLSCertFile  string
	TLSKeyFile   string
	// Origin is the site the catch-all route intercepts on behalf of.
	Origin *url.URL
	// EventsHeartbeat is the keep-alive interval of the worker event stream.
	EventsHeartbeat time.Duration
	RefreshMaxAge   time.Duration
}

// EventSubscriber registers a client for controller messages.
type EventSubscriber interface {
	Register() (*notify.Client, func())
}

type ServerDeps struct {
	QuestionCache      ports.QuestionCacheService
	QuestionLoader     ports.QuestionLoaderService
	OfflineController  ports.OfflineController
	Events             EventSubscriber
	AuthService        ports.AuthService
	RateLimiterService ports.RateLimiterService
	HealthCheckers     []ports.HealthChecker
}

type Server struct {
	echo           *echo.Echo
	config         *ServerConfig
	logger         *logrus.Logger
	questionCache  ports.QuestionCacheService
	questionLoader ports.QuestionLoaderService
	controller     ports.OfflineController
	events         EventSubscriber
	middleware     *customMiddleware.MiddlewareCollection
	healthCheckers []ports.HealthChecker
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if serverConfig == nil {
		serverConfig = &ServerConfig{}
	}
	if serverConfig.EventsHeartbeat <= 0 {
		serverConfig.EventsHeartbeat = 30 * time.Second
	}
	if serverConfig.RefreshMaxAge <= 0 {
		serverConfig.RefreshMaxAge = 24 * time.Hour
	}

	server := &Server{
		echo:           e,
		config:         serverConfig,
		logger:         logger,
		questionCache:  deps.QuestionCache,
		questionLoader: deps.QuestionLoader,
		controller:     deps.OfflineController,
		events:         deps.Events,
		healthCheckers: deps.HealthCheckers,
		middleware: customMiddleware.NewMiddlewareCollection(
			deps.AuthService,
			deps.RateLimiterService,
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
