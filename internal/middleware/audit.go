package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/internal/services"
)

// Audit records admin write operations (POST/PUT/DELETE) in the security log.
func Audit(log *services.SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		c.Next()

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			u := userID
			uid = &u
		}

		log.LogEvent(services.EventInput{
			EventType:  models.EventAdminAction,
			Severity:   models.SeverityInfo,
			UserID:     uid,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			RequestURI: c.Request.URL.Path,
			EventData: map[string]interface{}{
				"username": GetUsername(c),
				"method":   method,
				"status":   c.Writer.Status(),
			},
		})
	}
}
