package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/response"
)

// ContextSchoolKey is the gin context key storing the resolved school scope.
const ContextSchoolKey = "currentSchool"

// SchoolScope resolves which school a request operates on. School-bound users
// are pinned to the school in their token; SUPERADMIN users pick one via the
// X-School-ID header.
func SchoolScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		schoolID := claims.SchoolID
		if claims.Role == models.RoleSuperAdmin {
			schoolID = c.GetHeader("X-School-ID")
		}
		if schoolID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "no school scope for this request"))
			c.Abort()
			return
		}

		c.Set(ContextSchoolKey, schoolID)
		c.Next()
	}
}
