package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	admin := s.middleware.JWT.RequireAdmin()

	questions := api.Group("/questions")
	questions.GET("", s.listQuestions)
	questions.GET("/topic", s.getQuestionForTopic)
	questions.GET("/daily", s.getDailyQuestion)
	questions.GET("/random", s.getRandomQuestion)
	questions.GET("/cached/:id", s.getCachedQuestion)
	questions.POST("/cached", s.cacheQuestion)

	offline := api.Group("/offline")
	offline.GET("/mode", s.getOfflineMode)
	offline.PUT("/mode", s.setOfflineMode)
	offline.GET("/stats", s.getOfflineStats)
	offline.GET("/preload", s.listPreloadedTopics)
	offline.POST("/preload", s.preloadTopic)
	offline.POST("/preload/likely", s.preloadLikelyTopics)
	offline.POST("/import", s.importQuestions, admin)
	offline.DELETE("/cache", s.clearCaches, admin)

	worker := api.Group("/worker")
	worker.GET("/status", s.getWorkerStatus)
	worker.POST("/install", s.installWorker, admin)
	worker.POST("/activate", s.activateWorker, admin)
	worker.POST("/sync", s.syncWorker)
	worker.GET("/events", s.workerEvents)

	// Everything else is intercepted on behalf of the origin.
	s.echo.Any("/*", s.proxy)
}
