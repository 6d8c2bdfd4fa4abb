package server

import (
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
)

// @Summary      List Usage Events
// @Description  Raw usage events newest first, capped at 1000. Filter by principal, endpoint substring, or both.
// @Tags         usage
// @Produce      json
// @Param        principal_id  query  string  false  "Principal ID"
// @Param        endpoint      query  string  false  "Endpoint substring"
// @Param        from          query  string  false  "From (RFC3339)"
// @Param        to            query  string  false  "To (RFC3339)"
// @Success      200  {object}  APIResponse
// @Router       /usage [get]
func (s *Server) ListUsage(c *gin.Context) {
	req := usagedomain.ListRequest{Endpoint: c.Query("endpoint")}
	if raw := c.Query("principal_id"); raw != "" {
		principalID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("principal_id must be a valid id"))
			return
		}
		req.PrincipalID = principalID
	}
	if req.PrincipalID == 0 && req.Endpoint == "" {
		AbortWithError(c, newValidationError("principal_id or endpoint is required"))
		return
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("from must be RFC3339"))
			return
		}
		req.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("to must be RFC3339"))
			return
		}
		req.To = &to
	}

	events, err := s.usage.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, events)
}

// @Summary      Usage Stats
// @Description  Per-endpoint request counts for a calendar month
// @Tags         usage
// @Produce      json
// @Param        principal_id  query  string  true  "Principal ID"
// @Param        year          query  int     true  "Year"
// @Param        month         query  int     true  "Month"
// @Success      200  {object}  APIResponse
// @Router       /usage/stats [get]
func (s *Server) GetUsageStats(c *gin.Context) {
	principalID, year, month, ok := usagePeriodParams(c)
	if !ok {
		return
	}

	stats, err := s.usage.MonthlyStats(c.Request.Context(), principalID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, stats)
}

// @Summary      Usage Count
// @Description  Total request count for a calendar month
// @Tags         usage
// @Produce      json
// @Param        principal_id  query  string  true  "Principal ID"
// @Param        year          query  int     true  "Year"
// @Param        month         query  int     true  "Month"
// @Success      200  {object}  APIResponse
// @Router       /usage/count [get]
func (s *Server) GetUsageCount(c *gin.Context) {
	principalID, year, month, ok := usagePeriodParams(c)
	if !ok {
		return
	}

	count, err := s.usage.MonthlyCount(c.Request.Context(), principalID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"count": count})
}

// @Summary      Quota Status
// @Description  Remaining monthly quota for a principal without consuming any of it
// @Tags         usage
// @Produce      json
// @Param        principal_id  query  string  true  "Principal ID"
// @Success      200  {object}  APIResponse
// @Router       /usage/quota [get]
func (s *Server) GetQuotaStatus(c *gin.Context) {
	principalID, ok := usagePrincipalParam(c)
	if !ok {
		return
	}

	status, err := s.admission.QuotaStatus(c.Request.Context(), principalID, s.clock.Now(c.Request.Context()))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, status)
}

func usagePrincipalParam(c *gin.Context) (snowflake.ID, bool) {
	principalID, err := snowflake.ParseString(c.Query("principal_id"))
	if err != nil {
		AbortWithError(c, newValidationError("principal_id must be a valid id"))
		return 0, false
	}
	return principalID, true
}

func usagePeriodParams(c *gin.Context) (snowflake.ID, int, int, bool) {
	principalID, ok := usagePrincipalParam(c)
	if !ok {
		return 0, 0, 0, false
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year must be an integer"))
		return 0, 0, 0, false
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		AbortWithError(c, newValidationError("month must be an integer"))
		return 0, 0, 0, false
	}
	return principalID, year, month, true
}
