package middleware

import (
	"net/http"
	"strings"

	"match-service/internal/dto"
	"match-service/pkg/token"

	"github.com/gin-gonic/gin"
)

// ResumeTokenAuth guards lead-scoped routes. The token must be valid and must
// be bound to the lead named in the path; a token for one lead never grants
// access to another's state. Beacon-style clients cannot set headers, so the
// token is also accepted as a query parameter.
func ResumeTokenAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Resume token is required",
			})
			c.Abort()
			return
		}

		claims, err := token.Validate(tokenString, secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Invalid or expired resume token",
			})
			c.Abort()
			return
		}

		if leadID := c.Param("leadID"); leadID != "" && leadID != claims.LeadID {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusForbidden),
				Message: "Token is not valid for this lead",
			})
			c.Abort()
			return
		}

		c.Set("lead_id", claims.LeadID)
		c.Set("quiz_id", claims.QuizID)
		c.Set("version_id", claims.VersionID)
		c.Set("workspace_id", claims.WorkspaceID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}
