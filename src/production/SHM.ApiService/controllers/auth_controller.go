package controllers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	api_models "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models/api"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer mints operator access tokens
type TokenIssuer interface {
	GenerateAccessToken(username string) (*api_models.TokenResponse, error)
}

// AuthController handles operator login
type AuthController struct {
	admin  config.AdminConfig
	tokens TokenIssuer
	logger *logger.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(admin config.AdminConfig, tokens TokenIssuer, logger *logger.Logger) *AuthController {
	return &AuthController{admin: admin, tokens: tokens, logger: logger.WithComponent("auth")}
}

// RegisterRoutes registers the auth routes with Gin
func (c *AuthController) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/auth/login", c.Login)
}

func (c *AuthController) Login(ctx *gin.Context) {
	var req api_models.LoginRequest
	if !bindJSON(ctx, &req) {
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(c.admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(c.admin.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		c.logger.WithField("username", req.Username).Warn("login rejected")
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := c.tokens.GenerateAccessToken(req.Username)
	if err != nil {
		c.logger.ErrorWithError(err, "failed to sign access token")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	ctx.JSON(http.StatusOK, token)
}
