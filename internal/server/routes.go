package server

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/omnigw/internal/auth"
	"github.com/vyrodovalexey/omnigw/internal/auth/token"
	"github.com/vyrodovalexey/omnigw/internal/observability"
	"github.com/vyrodovalexey/omnigw/internal/pipeline"
	"github.com/vyrodovalexey/omnigw/internal/ratelimit"
	"github.com/vyrodovalexey/omnigw/internal/server/middleware"
)

const (
	claimsKey    = "claims"
	bearerPrefix = "Bearer "
)

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.deps.Health.ReadinessHandler())
	s.engine.POST("/api", s.handleAPI)
	s.engine.NoRoute(func(c *gin.Context) {
		writeEnvelope(c, http.StatusNotFound, pipeline.Failure(middleware.GetRequestID(c), "Not found"))
	})

	if s.deps.Engine == nil {
		return
	}
	admin := s.engine.Group("/admin", s.requireAdmin)
	admin.GET("/stats", s.handleStats)
	if s.deps.Gate != nil {
		admin.GET("/ratelimit/endpoint", s.handleEndpointStatus)
		admin.DELETE("/ratelimit/endpoint", s.handleEndpointReset)
		admin.GET("/ratelimit/source/:addr", s.handleSourceStatus)
		admin.DELETE("/ratelimit/source/:addr", s.handleSourceReset)
	}
	if s.deps.Cache != nil {
		admin.GET("/sessions/:service/:id", s.handleExternalSession)
	}
}

func writeEnvelope(c *gin.Context, status int, env pipeline.Envelope) {
	body, err := sonic.Marshal(env)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

func (s *Server) handleHealth(c *gin.Context) {
	data, err := sonic.Marshal(s.deps.Health.Health())
	if err != nil {
		writeEnvelope(c, http.StatusInternalServerError, pipeline.Failure(middleware.GetRequestID(c), "Internal error"))
		return
	}
	writeEnvelope(c, http.StatusOK, pipeline.Success(middleware.GetRequestID(c), data))
}

func (s *Server) handleAPI(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeEnvelope(c, http.StatusBadRequest, pipeline.Failure(middleware.GetRequestID(c),
				"Security validation failed: Request size exceeds maximum allowed"))
			return
		}
		writeEnvelope(c, http.StatusBadRequest, pipeline.Failure(middleware.GetRequestID(c), "Invalid request body"))
		return
	}

	var req pipeline.Request
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeEnvelope(c, http.StatusBadRequest, pipeline.Failure(middleware.GetRequestID(c), "Invalid JSON"))
		return
	}
	req.Token = bearerToken(c)
	req.ClientIP = c.ClientIP()

	resp := s.deps.Dispatcher.Dispatch(c.Request.Context(), &req)

	c.Header(middleware.RequestIDHeader, resp.Envelope.RequestID)
	if resp.RetryAfter > 0 {
		c.Header("Retry-After", retryAfterSeconds(resp.RetryAfter))
	}
	writeEnvelope(c, resp.Status, resp.Envelope)
}

func (s *Server) requireAdmin(c *gin.Context) {
	id := middleware.GetRequestID(c)

	raw := bearerToken(c)
	if raw == "" {
		writeEnvelope(c, http.StatusUnauthorized, pipeline.Failure(id, "Authentication required"))
		c.Abort()
		return
	}
	claims, err := s.deps.Engine.VerifyToken(raw)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, auth.ErrTokenExpired) {
			msg = "Token expired"
		}
		writeEnvelope(c, http.StatusUnauthorized, pipeline.Failure(id, msg))
		c.Abort()
		return
	}
	ok, err := s.deps.Engine.CheckPermission(c.Request.Context(), claims.Subject, auth.PermissionAdmin)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeEnvelope(c, http.StatusUnauthorized, pipeline.Failure(id, "Invalid token"))
		c.Abort()
		return
	case err != nil:
		writeEnvelope(c, http.StatusInternalServerError, pipeline.Failure(id, "Internal error"))
		c.Abort()
		return
	case !ok:
		writeEnvelope(c, http.StatusForbidden, pipeline.Failure(id, "Insufficient permissions"))
		c.Abort()
		return
	}

	c.Set(claimsKey, claims)
	c.Next()
}

func adminSubject(c *gin.Context) string {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*token.Claims); ok {
			return claims.Subject
		}
	}
	return ""
}

type statsResponse struct {
	RateLimit any    `json:"rate_limit,omitempty"`
	Cache     any    `json:"cache,omitempty"`
	Breaker   string `json:"circuit_breaker,omitempty"`
	Users     int    `json:"users"`
}

func (s *Server) handleStats(c *gin.Context) {
	resp := statsResponse{Users: s.deps.Engine.Users()}
	if s.deps.Gate != nil {
		resp.RateLimit = s.deps.Gate.Limiter().Stats()
	}
	if s.deps.Cache != nil {
		resp.Cache = s.deps.Cache.Stats()
	}
	if s.deps.Breaker != nil {
		resp.Breaker = s.deps.Breaker.BreakerState()
	}
	s.writeData(c, resp)
}

type rateLimitStatus struct {
	Identifier string `json:"identifier"`
	Tracked    bool   `json:"tracked"`
	Count      int    `json:"count"`
	Remaining  int    `json:"remaining"`
	ResetIn    string `json:"reset_in"`
}

func newRateLimitStatus(id string, st ratelimit.Status, tracked bool) rateLimitStatus {
	return rateLimitStatus{
		Identifier: id,
		Tracked:    tracked,
		Count:      st.Count,
		Remaining:  st.Remaining,
		ResetIn:    st.ResetIn.Round(time.Second).String(),
	}
}

// endpointParams reads the endpoint and subject query parameters. The
// subject is the user id for authenticated calls and the client IP
// otherwise.
func endpointParams(c *gin.Context) (endpoint, subject string, ok bool) {
	endpoint, subject = c.Query("endpoint"), c.Query("subject")
	if endpoint == "" || subject == "" {
		writeEnvelope(c, http.StatusBadRequest,
			pipeline.Failure(middleware.GetRequestID(c), "endpoint and subject are required"))
		return "", "", false
	}
	return endpoint, subject, true
}

func (s *Server) handleEndpointStatus(c *gin.Context) {
	endpoint, subject, ok := endpointParams(c)
	if !ok {
		return
	}
	id := ratelimit.EndpointIdentifier(endpoint, subject)
	_, tracked := s.deps.Gate.Limiter().Status(id)
	s.writeData(c, newRateLimitStatus(id, s.deps.Gate.EndpointStatus(endpoint, subject), tracked))
}

func (s *Server) handleEndpointReset(c *gin.Context) {
	endpoint, subject, ok := endpointParams(c)
	if !ok {
		return
	}
	s.deps.Gate.Reset(endpoint, subject)
	id := ratelimit.EndpointIdentifier(endpoint, subject)
	s.logger.Info("rate limit counter reset",
		observability.String("identifier", id),
		observability.String("actor", adminSubject(c)),
	)
	s.writeData(c, map[string]string{"reset": id})
}

func (s *Server) handleSourceStatus(c *gin.Context) {
	id := ratelimit.SourceIdentifier(c.Param("addr"))
	st, tracked := s.deps.Gate.Limiter().Status(id)
	if !tracked {
		p := s.deps.Gate.Table().PerSource
		st = ratelimit.Status{Remaining: p.Requests, ResetIn: p.Window}
	}
	s.writeData(c, newRateLimitStatus(id, st, tracked))
}

func (s *Server) handleSourceReset(c *gin.Context) {
	addr := c.Param("addr")
	s.deps.Gate.ResetSource(addr)
	id := ratelimit.SourceIdentifier(addr)
	s.logger.Info("rate limit counter reset",
		observability.String("identifier", id),
		observability.String("actor", adminSubject(c)),
	)
	s.writeData(c, map[string]string{"reset": id})
}

func (s *Server) handleExternalSession(c *gin.Context) {
	data, ok := s.deps.Cache.GetExternalSession(c.Request.Context(), c.Param("service"), c.Param("id"))
	if !ok {
		writeEnvelope(c, http.StatusNotFound, pipeline.Failure(middleware.GetRequestID(c), "Session not found"))
		return
	}
	writeEnvelope(c, http.StatusOK, pipeline.Success(middleware.GetRequestID(c), data))
}

func (s *Server) writeData(c *gin.Context, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		writeEnvelope(c, http.StatusInternalServerError, pipeline.Failure(middleware.GetRequestID(c), "Internal error"))
		return
	}
	writeEnvelope(c, http.StatusOK, pipeline.Success(middleware.GetRequestID(c), data))
}
