package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusride/internal/redis"
)

const (
	// IdempotencyHeader carries the caller-supplied retry token.
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	replayedHeader    = "Idempotent-Replayed"
)

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a mutating request retried with
// the same Idempotency-Key. Keys are scoped to the caller and route. Server
// errors are not stored so a retry runs again. A nil store disables replay.
func Idempotency(store redis.IdempotencyStoreInterface, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scope := CallerID(c)
		if scope == "" {
			scope = c.ClientIP()
		}
		cacheKey := scope + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		data, ok, err := store.GetResponse(ctx, cacheKey)
		if err != nil {
			// Redis error - proceed without replay.
			logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if ok {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.Header(replayedHeader, "true")
				c.Data(cached.StatusCode, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
			logger.Warn("discarding unreadable idempotent response", zap.String("key", key))
		}

		w := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusInternalServerError {
			return
		}

		encoded, err := json.Marshal(cachedResponse{
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			logger.Warn("encode idempotent response", zap.String("key", key), zap.Error(err))
			return
		}
		if err := store.SetResponse(ctx, cacheKey, encoded, idempotencyTTL); err != nil {
			logger.Warn("store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
