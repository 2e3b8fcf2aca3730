package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-control-api/internal/middleware"
	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/policy"
)

func currentUser(c *gin.Context) *models.User {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func actorFromContext(c *gin.Context) (policy.Actor, bool) {
	user := currentUser(c)
	if user == nil {
		return policy.Actor{}, false
	}
	return policy.Actor{ID: user.ID, Role: user.Role}, true
}
