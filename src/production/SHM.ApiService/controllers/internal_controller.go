package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/middleware"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

// InternalController handles internal API endpoints for service-to-service communication
type InternalController struct {
	deviceRepo interfaces.DeviceRepository
	usageRepo  interfaces.DeviceUsageRepository
	eventRepo  interfaces.SecurityEventRepository
	secret     string
	logger     *logger.Logger
}

// NewInternalController creates a new internal controller
func NewInternalController(
	deviceRepo interfaces.DeviceRepository,
	usageRepo interfaces.DeviceUsageRepository,
	eventRepo interfaces.SecurityEventRepository,
	secret string,
	logger *logger.Logger,
) *InternalController {
	return &InternalController{
		deviceRepo: deviceRepo,
		usageRepo:  usageRepo,
		eventRepo:  eventRepo,
		secret:     secret,
		logger:     logger.WithComponent("internal"),
	}
}

// DeviceExistsResponse represents the response from device validation
type DeviceExistsResponse struct {
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// CreateRecordResponse represents the response from telemetry record creation
type CreateRecordResponse struct {
	Success bool   `json:"success"`
	ID      int64  `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RegisterRoutes registers the internal API routes
func (c *InternalController) RegisterRoutes(router *gin.Engine) {
	internal := router.Group("/internal")
	internal.Use(middleware.ServiceAuthMiddleware(c.secret))

	internal.GET("/devices/:id/exists", c.DeviceExists)
	internal.POST("/device_usages", c.CreateUsage)
	internal.POST("/security_events", c.CreateEvent)
}

// DeviceExists checks if a device is registered
func (c *InternalController) DeviceExists(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	exists, err := c.deviceRepo.Exists(ctx.Request.Context(), id)
	if err != nil {
		c.logger.WithError(err).Warn("device lookup failed")
		ctx.JSON(http.StatusInternalServerError, DeviceExistsResponse{Error: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, DeviceExistsResponse{Exists: exists})
}

// CreateUsage stores a usage interval reported by the ingestor
func (c *InternalController) CreateUsage(ctx *gin.Context) {
	var req shmmodels.DeviceUsageCreate
	if !bindJSON(ctx, &req) {
		return
	}

	usage, err := c.usageRepo.Create(ctx.Request.Context(), req)
	if err != nil {
		c.writeCreateError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, CreateRecordResponse{Success: true, ID: usage.ID})
}

// CreateEvent stores a security event reported by the ingestor
func (c *InternalController) CreateEvent(ctx *gin.Context) {
	var req shmmodels.SecurityEventCreate
	if !bindJSON(ctx, &req) {
		return
	}

	event, err := c.eventRepo.Create(ctx.Request.Context(), req)
	if err != nil {
		c.writeCreateError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, CreateRecordResponse{Success: true, ID: event.ID})
}

func (c *InternalController) writeCreateError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, interfaces.ErrInvalidReference) {
		status = http.StatusUnprocessableEntity
	} else {
		c.logger.WithError(err).Warn("failed to store telemetry record")
	}
	ctx.JSON(status, CreateRecordResponse{Success: false, Error: err.Error()})
}
