package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/middleware"
	"github.com/noah-isme/shulepay-api/internal/models"
)

func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	raw, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := raw.(*models.JWTClaims)
	return claims, ok
}

// currentSchool returns the tenant scope set by the SchoolScope middleware.
func currentSchool(c *gin.Context) string {
	return c.GetString(middleware.ContextSchoolKey)
}

func currentUserID(c *gin.Context) string {
	if claims, ok := currentClaims(c); ok {
		return claims.UserID
	}
	return ""
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(c *gin.Context, key string, fallback float64) float64 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
