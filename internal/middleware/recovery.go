// Package middleware holds the gin middleware of the ops API.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recovery turns a handler panic into a logged 500.
func Recovery() gin.HandlerFunc {
	return RecoveryWithWriter(nil)
}

// RecoveryWithWriter also hands the recovered value to onPanic.
func RecoveryWithWriter(onPanic gin.RecoveryFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.WithFields(log.Fields{
				"panic":      r,
				"route":      c.FullPath(),
				"request_id": c.GetString(requestIDKey),
			}).WithField("stack", string(debug.Stack())).Error("ops handler panicked")
			if onPanic != nil {
				onPanic(c, r)
			}
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"message": "internal server error", "type": "internal_error"},
				})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}
