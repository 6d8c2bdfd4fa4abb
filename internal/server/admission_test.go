package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	admissiondomain "github.com/metergatelabs/metergate/internal/admission/domain"
	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/server"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now(context.Context) time.Time { return c.t }

type admissionStub struct {
	decision admissiondomain.Decision
	status   *admissiondomain.QuotaStatus
	calls    int
}

func (a *admissionStub) Admit(context.Context, snowflake.ID, time.Time) admissiondomain.Decision {
	a.calls++
	return a.decision
}

func (a *admissionStub) QuotaStatus(context.Context, snowflake.ID, time.Time) (*admissiondomain.QuotaStatus, error) {
	return a.status, nil
}

type producerStub struct {
	events []usagedomain.Event
}

func (p *producerStub) Emit(event usagedomain.Event) {
	p.events = append(p.events, event)
}

type gatewayFixture struct {
	engine    *gin.Engine
	admission *admissionStub
	producer  *producerStub
}

func newGateway(t *testing.T, decision admissiondomain.Decision) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{}
	cfg.Admission.BypassPaths = []string{"/api/auth", "/healthz"}

	adm := &admissionStub{decision: decision}
	prod := &producerStub{}

	engine := gin.New()
	s := server.NewServer(server.ServerParam{
		Log:       zap.NewNop(),
		Config:    cfg,
		Clock:     fixedClock{t: time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		Engine:    engine,
		Admission: adm,
		Producer:  prod,
	})

	engine.Use(s.PrincipalClaims(), s.Admission())
	engine.GET("/api/products", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	engine.GET("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return &gatewayFixture{engine: engine, admission: adm, producer: prod}
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + token
}

func get(f *gatewayFixture, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestAdmissionMiddleware_DeniedRequest(t *testing.T) {
	reset := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	f := newGateway(t, admissiondomain.Decision{
		Allowed:    false,
		Reason:     admissiondomain.ReasonMonthlyQuotaExceeded,
		Limit:      100,
		Remaining:  0,
		Reset:      reset,
		RetryAfter: 90 * time.Second,
	})

	rec := get(f, "/api/products", bearerToken(t, "12345"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1759276800", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))

	var body server.RateLimitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body.Error)
	assert.Equal(t, "monthly quota exceeded", body.Message)
	assert.Equal(t, int64(90), body.RetryAfterSeconds)

	// Denied requests never reach the pipeline.
	assert.Empty(t, f.producer.events)
}

func TestAdmissionMiddleware_AllowedRequestEmitsUsage(t *testing.T) {
	f := newGateway(t, admissiondomain.Decision{Allowed: true, Limit: 100, Remaining: 42})

	rec := get(f, "/api/products", bearerToken(t, "12345"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.producer.events, 1)

	event := f.producer.events[0]
	assert.Equal(t, snowflake.ID(12345), event.PrincipalID)
	assert.Equal(t, "/api/products", event.Endpoint)
	assert.Equal(t, http.MethodGet, event.HTTPMethod)
	assert.Equal(t, http.StatusCreated, event.StatusCode)
	assert.Equal(t, time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC), event.RecordedAt)
}

func TestAdmissionMiddleware_BypassPathSkipsAdmission(t *testing.T) {
	f := newGateway(t, admissiondomain.Decision{Allowed: false})

	rec := get(f, "/api/auth/login", bearerToken(t, "12345"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.admission.calls)
	assert.Empty(t, f.producer.events)
}

func TestAdmissionMiddleware_UnidentifiedRequestPassesThrough(t *testing.T) {
	f := newGateway(t, admissiondomain.Decision{Allowed: false})

	for _, auth := range []string{"", "Bearer not-a-jwt", "Basic abc"} {
		rec := get(f, "/api/products", auth)
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Zero(t, f.admission.calls)
	assert.Empty(t, f.producer.events)
}
