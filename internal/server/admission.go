package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/metergatelabs/metergate/internal/admission/domain"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
)

// RateLimitResponse is the 429 body returned on denial.
type RateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
}

// Admission gates every proxied request: bypass paths and unidentified
// requests pass through untouched; everything else goes through the rate
// and quota counters. Admitted requests get a usage event emitted after
// the response completes, off the response path.
func (s *Server) Admission() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range s.cfg.Admission.BypassPaths {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		principalID, ok := principalFromContext(c)
		if !ok {
			c.Next()
			return
		}

		now := s.clock.Now(c.Request.Context())
		decision := s.admission.Admit(c.Request.Context(), principalID, now)
		if !decision.Allowed {
			writeRateLimitResponse(c, decision)
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		if s.producer != nil {
			s.producer.Emit(usagedomain.Event{
				PrincipalID: principalID,
				Endpoint:    path,
				HTTPMethod:  c.Request.Method,
				StatusCode:  c.Writer.Status(),
				LatencyMs:   latency.Milliseconds(),
				IPAddress:   c.ClientIP(),
				UserAgent:   c.Request.UserAgent(),
				RecordedAt:  now,
			})
		}
	}
}

func writeRateLimitResponse(c *gin.Context, d admissiondomain.Decision) {
	retryAfter := int64(d.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))

	message := "rate limit exceeded"
	if d.Reason == admissiondomain.ReasonMonthlyQuotaExceeded {
		message = "monthly quota exceeded"
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
		Error:             "rate limit exceeded",
		Message:           message,
		RetryAfterSeconds: retryAfter,
	})
}
