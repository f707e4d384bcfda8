package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/metrics"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

// SQLController serves the SQL console endpoints
type SQLController struct {
	queries interfaces.QueryRepository
	logger  *logger.Logger
	guards  []gin.HandlerFunc
}

// NewSQLController creates a new SQL console controller. guards protect the
// query endpoint only.
func NewSQLController(queries interfaces.QueryRepository, logger *logger.Logger, guards ...gin.HandlerFunc) *SQLController {
	return &SQLController{queries: queries, logger: logger.WithComponent("sql_console"), guards: guards}
}

// RegisterRoutes registers the SQL console routes with Gin
func (c *SQLController) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/schema_for_completion", c.SchemaForCompletion)
		handlers := append(append([]gin.HandlerFunc{}, c.guards...), c.Query)
		api.POST("/sql_query", handlers...)
	}
}

// SchemaForCompletion returns {table: [column, ...]} for client-side completion.
func (c *SQLController) SchemaForCompletion(ctx *gin.Context) {
	tables, err := c.queries.Schema(ctx.Request.Context())
	if err != nil {
		c.logger.WithError(err).Warn("schema introspection failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schema: " + err.Error()})
		return
	}

	schema := make(map[string][]string, len(tables))
	for _, t := range tables {
		cols := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cols[i] = col.Name
		}
		schema[t.Name] = cols
	}
	ctx.JSON(http.StatusOK, schema)
}

// Query runs a single SELECT in a read-only transaction.
func (c *SQLController) Query(ctx *gin.Context) {
	var req shmmodels.SQLQueryRequest
	if !bindJSON(ctx, &req) {
		return
	}

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(req.SQL)), "select") {
		ctx.JSON(http.StatusOK, gin.H{"success": false, "error": "Only SELECT queries are allowed."})
		return
	}

	rs, err := c.queries.Select(ctx.Request.Context(), req.SQL)
	metrics.RecordSQLStatement("console", err)
	if err != nil {
		ctx.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}

	rows := rs.Rows
	if rows == nil {
		rows = []shmmodels.Row{}
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "data": rows, "columns": rs.Columns})
}
