package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
)

const userContextKey = "authUser"
const tokenContextKey = "authToken"

// authMiddleware resolves "Authorization: Token <key>" headers and aborts
// unauthenticated requests.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := tokenFromHeader(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		user, err := h.userService.Authenticate(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(userContextKey, user)
		c.Set(tokenContextKey, key)
		c.Next()
	}
}

func tokenFromHeader(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Token") {
		return "", false
	}
	key := strings.TrimSpace(parts[1])
	return key, key != ""
}

// currentUser returns the authenticated user set by authMiddleware
func currentUser(c *gin.Context) *models.User {
	user, _ := c.MustGet(userContextKey).(*models.User)
	return user
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
