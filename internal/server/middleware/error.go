package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/core/domain"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error pushed by a handler as an RFC 9457
// problem document.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var problem *domain.Problem
		if errors.As(err, &problem) {
			if problem.Log != nil {
				logger.Error("Internal error",
					zap.String("path", c.Request.URL.Path),
					zap.Int("status", problem.Status),
					zap.Error(problem.Log),
				)
			}
			if problem.Instance == "" {
				problem.Instance = c.Request.URL.Path
			}
			c.AbortWithStatusJSON(problem.Status, problem)
			return
		}

		// at this point it's an unknown error
		logger.Error("Unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.NewProblem(
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected error occurred.",
		))
	}
}
