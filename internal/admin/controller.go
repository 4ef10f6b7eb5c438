package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AdminController struct {
	service AdminServiceInterface
}

func NewAdminController(service AdminServiceInterface) *AdminController {
	return &AdminController{service: service}
}

func (ctrl *AdminController) ListUsers(c *gin.Context) {
	users, err := ctrl.service.ListUsers(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (ctrl *AdminController) UserData(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	data, err := ctrl.service.DumpUserData(c.Request.Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to dump user data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"userId": userID, "data": data})
}

func (ctrl *AdminController) Stats(c *gin.Context) {
	stats, err := ctrl.service.Stats(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to read stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
