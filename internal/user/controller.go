package user

import (
	"errors"
	"net/http"

	"github.com/mstfa13/asura-backend/internal/common"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type UserController struct {
	userService UserServiceInterface
}

func NewUserController(userService UserServiceInterface) *UserController {
	return &UserController{
		userService: userService,
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register handles user registration and returns a token for the new account.
func (a *UserController) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	resp, err := a.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrDuplicateUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username exists"})
		case errors.Is(err, common.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		default:
			logrus.WithError(err).Error("Registration failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Login handles user login and returns a JWT
func (a *UserController) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	resp, err := a.userService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, common.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		case errors.Is(err, common.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		default:
			logrus.WithError(err).Error("Login failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
