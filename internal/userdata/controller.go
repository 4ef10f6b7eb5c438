package userdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mstfa13/asura-backend/internal/auth"
	"github.com/mstfa13/asura-backend/internal/common"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var emptyObject = json.RawMessage(`{}`)

type UserDataController struct {
	service UserDataServiceInterface
}

func NewUserDataController(service UserDataServiceInterface) *UserDataController {
	return &UserDataController{service: service}
}

// GetData returns the caller's value for :key, or null when unset.
func (ctrl *UserDataController) GetData(c *gin.Context) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	value, err := ctrl.service.Get(c.Request.Context(), userID, c.Param("key"))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrCorruptValue):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Parse error"})
		case errors.Is(err, common.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Key required"})
		default:
			logrus.WithError(err).Error("Failed to read user data")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
		return
	}

	if value == nil {
		c.JSON(http.StatusOK, gin.H{"data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": value})
}

// PutData stores the request body under :key, replacing any previous value.
func (ctrl *UserDataController) PutData(c *gin.Context) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	value := json.RawMessage(bytes.TrimSpace(body))
	if len(value) == 0 {
		value = emptyObject
	}
	if !json.Valid(value) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if err := ctrl.service.Put(c.Request.Context(), userID, c.Param("key"), value); err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).Error("Failed to write user data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
