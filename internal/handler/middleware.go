package handler

import (
	"crypto/subtle"
	"log"
	"net"
	"time"

	"donationpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs one line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware turns a panic into a 500. A gateway receiving 500
// retries the notification later.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(500, response.Response{
					Status:  response.StatusError,
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, Idempotency-Key, X-Admin-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AdminAuth guards the admin routes with a shared token sent in
// X-Admin-Token. Without a configured token only loopback callers get in.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			ip := net.ParseIP(c.ClientIP())
			if ip == nil || !ip.IsLoopback() {
				log.Printf("[SECURITY] admin request from %s refused: no admin token configured", c.ClientIP())
				response.Unauthorized(c, "admin access is limited to localhost")
				c.Abort()
				return
			}
			c.Next()
			return
		}

		given := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			log.Printf("[SECURITY] admin request from %s refused: bad token", c.ClientIP())
			response.Unauthorized(c, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}
