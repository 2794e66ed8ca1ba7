package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradesheet-api/internal/middleware"
	"github.com/noah-isme/gradesheet-api/internal/models"
)

// actorFromContext maps JWT claims to the session actor. Without authentication every
// caller is the same anonymous actor.
func actorFromContext(c *gin.Context) models.Actor {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		return models.Actor{}
	}
	return models.Actor{UserID: claims.UserID, Role: claims.Role}
}
