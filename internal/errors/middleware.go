// Gin middleware for the error package: a handler-chain tail that turns
// AppErrors recorded via c.Error into consistent JSON responses (ERROR
// logs for 5xx, WARN for 4xx), a panic-recovery wrapper, and the
// HandleError/AbortWithError helpers handlers call directly.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/legacy-use/gateway/internal/logger"
)

// ErrorHandler is a middleware that handles errors consistently.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			log := logger.HTTP()

			if appErr, ok := err.Err.(*AppError); ok {
				if appErr.StatusCode >= 500 {
					log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
				} else {
					log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
				}

				c.JSON(appErr.StatusCode, appErr.ToResponse())
				return
			}

			log.Error().Err(err.Err).Msg("unhandled error")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   CodeInternalServer,
				Message: "an unexpected error occurred",
				Code:    CodeInternalServer,
			})
		}
	}
}

// Recovery is a middleware that recovers from panics.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   CodeInternalServer,
					Message: "an unexpected error occurred",
					Code:    CodeInternalServer,
				})

				c.Abort()
			}
		}()

		c.Next()
	}
}

// HandleError is a helper function to handle errors in handlers
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	} else {
		internalErr := InternalServer(err.Error())
		c.Error(internalErr)
		c.JSON(internalErr.StatusCode, internalErr.ToResponse())
	}
}

// AbortWithError is a helper to abort request with error
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
