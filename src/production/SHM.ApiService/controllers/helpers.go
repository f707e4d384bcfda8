package controllers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

const (
	defaultSkip  = 0
	defaultLimit = 100
)

// fieldError is one failed validation rule in a 422 reply
type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// bindJSON decodes the body into dst, answering 422 when it is malformed or
// fails its binding rules.
func bindJSON(ctx *gin.Context, dst interface{}) bool {
	err := ctx.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": details})
		return false
	}

	ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body: " + err.Error()})
	return false
}

// pathID parses the :id parameter, answering 422 when it is not an integer.
func pathID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("invalid id %q", ctx.Param("id"))})
		return 0, false
	}
	return id, true
}

// paging reads skip and limit query parameters.
func paging(ctx *gin.Context) (skip, limit int, ok bool) {
	skip, err := strconv.Atoi(ctx.DefaultQuery("skip", strconv.Itoa(defaultSkip)))
	if err != nil || skip < 0 {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "skip must be a non-negative integer"})
		return 0, 0, false
	}
	limit, err = strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be a non-negative integer"})
		return 0, 0, false
	}
	return skip, limit, true
}

// writeRepoError maps repository errors onto HTTP replies.
func writeRepoError(ctx *gin.Context, log *logger.Logger, entity string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ctx.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
	case errors.Is(err, interfaces.ErrInvalidReference):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.WithError(err).WithField("entity", entity).Warn("repository call failed")
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
