package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/metrics"
)

// ContextKeyIdentity is the context key for the verified identity id.
const ContextKeyIdentity = "identity"

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			logger.Debug().Msg("missing or malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header", Code: "unauthenticated"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Code: "unauthenticated"})
			return
		}

		c.Set(ContextKeyIdentity, claims.Subject)
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs and counts HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Request(route, strconv.Itoa(c.Writer.Status()))

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// WSLogger logs and counts websocket sessions once they end.
func WSLogger(next http.Handler, logger *zerolog.Logger, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.Request(r.URL.Path, strconv.Itoa(rec.status))
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("ws session")
	})
}

// statusRecorder keeps the written status. Unwrap lets websocket.Accept reach
// the underlying Hijacker.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" value.
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func identityFrom(c *gin.Context) string {
	return c.GetString(ContextKeyIdentity)
}
