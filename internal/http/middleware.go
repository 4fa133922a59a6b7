package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/audit"
	"github.com/mrlokans/librapp/internal/auth"
	"github.com/mrlokans/librapp/internal/logging"
)

const (
	RequestIDHeader = "X-Request-ID"

	ctxKeyLogger = "request_logger"
)

// RequestLogger assigns every request a correlation id, taken from the
// X-Request-ID header when the caller sent a well-formed one, and logs the
// request once it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		reqLog := log.With(zap.String("request_id", requestID))
		c.Set(ctxKeyLogger, reqLog)

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := auth.GetUserID(c); uid != auth.DefaultUserID {
			fields = append(fields, zap.Uint("user_id", uid))
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			reqLog.Error("request", fields...)
		case status >= 400:
			reqLog.Warn("request", fields...)
		default:
			reqLog.Info("request", fields...)
		}
	}
}

// Recovery turns panics into 500 responses and logs them.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		l := log
		if _, ok := c.Get(ctxKeyLogger); ok {
			l = requestLogger(c)
		}
		l.Error("panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: CodeInternal})
	})
}

// ActorContext records who is making the request so audit events written
// further down the call chain can attribute it. Must run after the auth
// middleware.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithActor(c.Request.Context(), audit.Actor{
			UserID:    auth.GetUserID(c),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if log, ok := v.(*zap.Logger); ok {
			return log
		}
	}
	return zap.NewNop()
}
