package controllers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

// EntityController serves the CRUD routes of one entity collection
type EntityController[In any, Out any] struct {
	entity string
	path   string
	repo   interfaces.CRUDRepository[In, Out]
	logger *logger.Logger
}

// NewEntityController creates a controller mounted at path. entity names the
// record in "not found" replies.
func NewEntityController[In any, Out any](entity, path string, repo interfaces.CRUDRepository[In, Out], logger *logger.Logger) *EntityController[In, Out] {
	return &EntityController[In, Out]{
		entity: entity,
		path:   path,
		repo:   repo,
		logger: logger.WithComponent(path),
	}
}

func NewUserController(repo interfaces.UserRepository, logger *logger.Logger) *EntityController[shmmodels.UserCreate, shmmodels.UserOut] {
	return NewEntityController("User", "/users", repo, logger)
}

func NewRoomController(repo interfaces.RoomRepository, logger *logger.Logger) *EntityController[shmmodels.RoomCreate, shmmodels.RoomOut] {
	return NewEntityController("Room", "/rooms", repo, logger)
}

func NewDeviceController(repo interfaces.DeviceRepository, logger *logger.Logger) *EntityController[shmmodels.DeviceCreate, shmmodels.DeviceOut] {
	return NewEntityController[shmmodels.DeviceCreate, shmmodels.DeviceOut]("Device", "/devices", repo, logger)
}

func NewDeviceUsageController(repo interfaces.DeviceUsageRepository, logger *logger.Logger) *EntityController[shmmodels.DeviceUsageCreate, shmmodels.DeviceUsage] {
	return NewEntityController("DeviceUsage", "/device_usages", repo, logger)
}

func NewSecurityEventController(repo interfaces.SecurityEventRepository, logger *logger.Logger) *EntityController[shmmodels.SecurityEventCreate, shmmodels.SecurityEvent] {
	return NewEntityController("SecurityEvent", "/security_events", repo, logger)
}

func NewFeedbackController(repo interfaces.FeedbackRepository, logger *logger.Logger) *EntityController[shmmodels.FeedbackCreate, shmmodels.Feedback] {
	return NewEntityController("Feedback", "/feedbacks", repo, logger)
}

// RegisterRoutes registers the collection routes with Gin
func (c *EntityController[In, Out]) RegisterRoutes(router *gin.Engine) {
	group := router.Group(c.path)
	{
		group.POST("", c.Create)
		group.POST("/", c.Create)
		group.GET("", c.List)
		group.GET("/", c.List)
		group.GET("/:id", c.Get)
		group.PUT("/:id", c.Upsert)
		group.DELETE("/:id", c.Delete)
	}
}

func (c *EntityController[In, Out]) Create(ctx *gin.Context) {
	var in In
	if !bindJSON(ctx, &in) {
		return
	}

	out, err := c.repo.Create(ctx.Request.Context(), in)
	if err != nil {
		writeRepoError(ctx, c.logger, c.entity, err)
		return
	}
	ctx.JSON(http.StatusOK, out)
}

func (c *EntityController[In, Out]) List(ctx *gin.Context) {
	skip, limit, ok := paging(ctx)
	if !ok {
		return
	}

	items, err := c.repo.List(ctx.Request.Context(), skip, limit)
	if err != nil {
		writeRepoError(ctx, c.logger, c.entity, err)
		return
	}
	if items == nil {
		items = []Out{}
	}
	ctx.JSON(http.StatusOK, items)
}

func (c *EntityController[In, Out]) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	out, err := c.repo.Get(ctx.Request.Context(), id)
	if err != nil {
		writeRepoError(ctx, c.logger, c.entity, err)
		return
	}
	ctx.JSON(http.StatusOK, out)
}

// Upsert updates the record with the given id, creating it when absent.
func (c *EntityController[In, Out]) Upsert(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var in In
	if !bindJSON(ctx, &in) {
		return
	}

	out, err := c.repo.Upsert(ctx.Request.Context(), id, in)
	if err != nil {
		writeRepoError(ctx, c.logger, c.entity, err)
		return
	}
	ctx.JSON(http.StatusOK, out)
}

// Delete answers 200 either way; a missing record is reported as ok=false.
func (c *EntityController[In, Out]) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	err := c.repo.Delete(ctx.Request.Context(), id)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, sql.ErrNoRows):
		ctx.JSON(http.StatusOK, gin.H{"ok": false, "error": c.entity + " not found"})
	default:
		writeRepoError(ctx, c.logger, c.entity, err)
	}
}
