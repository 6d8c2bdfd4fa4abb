package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// upstreamProxy builds the forwarder for admitted requests. The routing
// layer proper lives outside this service; a single upstream keeps the
// gateway honest about only owning admission and metering.
func (s *Server) upstreamProxy() (gin.HandlerFunc, error) {
	if s.cfg.Gateway.UpstreamURL == "" {
		return func(c *gin.Context) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "no upstream configured"})
		}, nil
	}

	target, err := url.Parse(s.cfg.Gateway.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		s.log.Warn("upstream request failed", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
