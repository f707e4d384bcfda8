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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	container "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Container"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.IngestorService/client"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.IngestorService/ingestor"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewIngestorContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}

	logger := ctr.GetLogger()
	logger.Info("Starting MQTT Ingestor Service")

	config := ctr.GetConfig()

	apiClient := client.NewAPIClient(config.ApiServiceURL, config.InternalAPISecret, config.RequestTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := ingestor.New(config, apiClient, logger)
	if err := ing.Start(ctx, config.GetMQTTBrokerURL()); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT ingestor")
	}
	defer ing.Stop()

	srv := &http.Server{
		Addr:              ":" + config.HealthPort,
		Handler:           healthRouter(ing, apiClient),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Health server starting on port " + config.HealthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithError(err, "Failed to start health server")
		}
	}()

	logger.Info("MQTT ingestor running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Health server forced to shutdown")
	}
}

// healthRouter serves /health and /metrics for the ingestor
func healthRouter(ing *ingestor.Ingestor, apiClient *client.APIClient) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		mqttStatus := "disconnected"
		if ing.IsConnected() {
			mqttStatus = "connected"
		}
		apiStatus := "disconnected"
		if err := apiClient.Health(ctx); err == nil {
			apiStatus = "connected"
		}

		status, code := "healthy", http.StatusOK
		if mqttStatus != "connected" || apiStatus != "connected" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"services": gin.H{
				"mqtt":        mqttStatus,
				"api_service": apiStatus,
			},
			"circuit_breaker": apiClient.BreakerStatus(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
