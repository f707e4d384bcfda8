package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/implementation/analysis"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
)

// ReportRunner renders analysis reports
type ReportRunner interface {
	Run(ctx context.Context, name string, p analysis.Params) (*analysis.Report, error)
}

// AnalysisController serves /analysis/<name>
type AnalysisController struct {
	reports ReportRunner
	logger  *logger.Logger
}

// NewAnalysisController creates a new analysis controller
func NewAnalysisController(reports ReportRunner, logger *logger.Logger) *AnalysisController {
	return &AnalysisController{reports: reports, logger: logger.WithComponent("analysis")}
}

// RegisterRoutes registers the analysis routes with Gin
func (c *AnalysisController) RegisterRoutes(router *gin.Engine) {
	router.GET("/analysis/:name", c.Report)
}

// Report answers with a PNG, or with JSON for tables and empty data.
func (c *AnalysisController) Report(ctx *gin.Context) {
	name := ctx.Param("name")
	report, err := c.reports.Run(ctx.Request.Context(), name, analysis.Params{Month: ctx.Query("month")})
	switch {
	case errors.Is(err, analysis.ErrUnknownReport):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, analysis.ErrInvalidMonth):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.logger.WithError(err).WithField("report", name).Warn("report failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed: " + err.Error()})
		return
	}

	if report.IsImage() {
		ctx.Data(http.StatusOK, "image/png", report.PNG)
		return
	}
	ctx.JSON(http.StatusOK, report.Body)
}
