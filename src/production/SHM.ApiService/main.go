package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/controllers"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/analysis"
	jwt "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/jwt"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/llm"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/nlp"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/middleware"
	container "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Container"
	api_models "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models/api"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
	implementation "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Implementation"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting API Service")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(ctx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}
	healthChecker, err := ctr.GetHealthChecker()
	if err != nil {
		logger.FatalWithError(err, "Failed to create health checker")
	}

	config := ctr.GetConfig()

	// Create repositories
	userRepo := implementation.NewPostgresUserRepository(db)
	roomRepo := implementation.NewPostgresRoomRepository(db)
	deviceRepo := implementation.NewPostgresDeviceRepository(db)
	usageRepo := implementation.NewPostgresDeviceUsageRepository(db)
	eventRepo := implementation.NewPostgresSecurityEventRepository(db)
	feedbackRepo := implementation.NewPostgresFeedbackRepository(db)
	analyticsRepo := implementation.NewPostgresAnalyticsRepository(db)
	queryRepo := implementation.NewPostgresQueryRepository(db)

	// Transcripts are optional; the assistant works without them
	var transcripts interfaces.TranscriptRepository
	if mongoClient, err := ctr.GetMongo(); err != nil {
		logger.WithError(err).Warn("MongoDB unavailable, assistant transcripts disabled")
	} else if mongoClient != nil {
		transcripts = implementation.NewMongoTranscriptRepository(mongoClient, config.Mongo.Database, config.Mongo.Collection)
	}

	// Assistant
	prompts := nlp.NewPromptCache(queryRepo, logger)
	prompts.Warm(ctx)
	llmClient := llm.NewClientFromConfig(config.LLM, logger)
	dispatcher := nlp.NewDispatcher(llmClient, queryRepo, prompts, transcripts, config.LLM.DefaultProvider, logger)

	reports := analysis.NewService(analyticsRepo, logger)

	jwtService := jwt.NewService(api_models.Config{
		SecretKey:           config.Auth.JWTSecretKey,
		AccessTokenDuration: config.Auth.AccessTokenDuration,
		Issuer:              config.Auth.JWTIssuer,
	})
	authMiddleware := middleware.NewAuthMiddleware(jwtService, config.Auth.Enabled)
	nlpLimiter := middleware.NewRateLimiter(config.NLP.RatePerMinute, config.NLP.Burst)
	defer nlpLimiter.Stop()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	if config.Metrics.Enabled {
		router.Use(middleware.PrometheusMetrics())
	}

	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// Create controllers and register routes
	registrars := []interface{ RegisterRoutes(*gin.Engine) }{
		controllers.NewHealthController(healthChecker),
		controllers.NewUserController(userRepo, logger),
		controllers.NewRoomController(roomRepo, logger),
		controllers.NewDeviceController(deviceRepo, logger),
		controllers.NewDeviceUsageController(usageRepo, logger),
		controllers.NewSecurityEventController(eventRepo, logger),
		controllers.NewFeedbackController(feedbackRepo, logger),
		controllers.NewAnalysisController(reports, logger),
		controllers.NewNLPController(dispatcher, authMiddleware.Authenticate(), nlpLimiter.Middleware()),
		controllers.NewSQLController(queryRepo, logger, authMiddleware.Authenticate()),
	}
	if config.Auth.Enabled {
		registrars = append(registrars, controllers.NewAuthController(config.Auth.Admin, jwtService, logger))
	}
	if config.InternalAPISecret != "" {
		registrars = append(registrars, controllers.NewInternalController(deviceRepo, usageRepo, eventRepo, config.InternalAPISecret, logger))
	} else {
		logger.Warn("INTERNAL_API_SECRET not set, ingestor routes disabled")
	}
	for _, r := range registrars {
		r.RegisterRoutes(router)
	}

	if config.Metrics.Enabled {
		router.GET(config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	port := config.Server.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
