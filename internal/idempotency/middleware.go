package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Header is the request header carrying the client's idempotency key.
const Header = "Idempotency-Key"

// ReplayHeader is set on responses served from the store.
const ReplayHeader = "Idempotent-Replay"

// DefaultTTL is how long a response is kept when no TTL is configured.
const DefaultTTL = 24 * time.Hour

type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response for a repeated Idempotency-Key and
// stores the handler's response otherwise. A repeated key with a different
// request body is rejected with 422. Requests without the header pass
// through untouched. 5xx responses are not stored so the client may retry.
// Store failures are logged and never fail the request.
func Middleware(store Store, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := c.GetHeader(Header)
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		scoped := c.Request.Method + " " + c.FullPath() + " " + key

		var raw []byte
		if c.Request.Body != nil {
			var err error
			if raw, err = io.ReadAll(c.Request.Body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
				c.Abort()
				return
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		sum := sha256.Sum256(raw)
		hash := hex.EncodeToString(sum[:])

		stored, ok, err := store.Get(ctx, scoped)
		if err != nil {
			logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}
		if ok && stored.RequestHash != "" && stored.RequestHash != hash {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key was already used with a different request body"})
			c.Abort()
			return
		}
		if ok {
			c.Header(ReplayHeader, "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Set("idempotency_key", key)
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		saved, err := store.Save(ctx, scoped, Stored{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			RequestHash: hash,
		}, ttl)
		if err != nil {
			logger.Warn("idempotency save failed", zap.String("key", key), zap.Error(err))
			return
		}
		if !saved {
			logger.Info("idempotency key already recorded by a concurrent request", zap.String("key", key))
		}
	}
}
