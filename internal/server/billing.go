package server

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type processBillingRequest struct {
	PrincipalID string `json:"principal_id" binding:"required"`
	Year        int    `json:"year" binding:"required"`
	Month       int    `json:"month" binding:"required"`
}

// @Summary      Process Monthly Billing
// @Description  Settle one principal's summary for a period
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        request body processBillingRequest true "Billing Period"
// @Success      201  {object}  APIResponse
// @Router       /billing/process [post]
func (s *Server) ProcessMonthlyBilling(c *gin.Context) {
	var req processBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("principal_id, year and month are required"))
		return
	}
	principalID, err := snowflake.ParseString(req.PrincipalID)
	if err != nil {
		AbortWithError(c, newValidationError("principal_id must be a valid id"))
		return
	}

	summary, err := s.billing.ProcessMonthlyBilling(c.Request.Context(), principalID, req.Year, req.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, summary)
}

// @Summary      Process All Pending Billing
// @Description  Settle the previous month for every active principal
// @Tags         billing
// @Produce      json
// @Success      200  {object}  APIResponse
// @Router       /billing/process-all [post]
func (s *Server) ProcessAllPendingBilling(c *gin.Context) {
	result, err := s.billing.ProcessAllPendingBilling(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, result)
}

// @Summary      List Billing Summaries
// @Description  All summaries for a principal, newest period first
// @Tags         billing
// @Produce      json
// @Param        principal_id  path  string  true  "Principal ID"
// @Success      200  {object}  APIResponse
// @Router       /billing/{principal_id} [get]
func (s *Server) GetBillingSummaries(c *gin.Context) {
	principalID, err := snowflake.ParseString(c.Param("principal_id"))
	if err != nil {
		AbortWithError(c, newValidationError("principal_id must be a valid id"))
		return
	}

	summaries, err := s.billing.GetSummaries(c.Request.Context(), principalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, summaries)
}

// @Summary      Get Billing Summary
// @Description  One summary for a principal and period
// @Tags         billing
// @Produce      json
// @Param        principal_id  path  string  true  "Principal ID"
// @Param        year          path  int     true  "Year"
// @Param        month         path  int     true  "Month"
// @Success      200  {object}  APIResponse
// @Router       /billing/{principal_id}/{year}/{month} [get]
func (s *Server) GetBillingSummary(c *gin.Context) {
	principalID, year, month, ok := billingPeriodParams(c)
	if !ok {
		return
	}

	summary, err := s.billing.GetSummary(c.Request.Context(), principalID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, summary)
}

// @Summary      Calculate Monthly Bill
// @Description  Price a period without persisting anything
// @Tags         billing
// @Produce      json
// @Param        principal_id  path  string  true  "Principal ID"
// @Param        year          path  int     true  "Year"
// @Param        month         path  int     true  "Month"
// @Success      200  {object}  APIResponse
// @Router       /billing/{principal_id}/{year}/{month}/calculate [get]
func (s *Server) CalculateMonthlyBill(c *gin.Context) {
	principalID, year, month, ok := billingPeriodParams(c)
	if !ok {
		return
	}

	cost, err := s.billing.CalculateMonthlyBill(c.Request.Context(), principalID, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"cost": cost})
}

// @Summary      Mark Bill As Paid
// @Description  One-shot Processed to Paid transition
// @Tags         billing
// @Produce      json
// @Param        id  path  string  true  "Summary ID"
// @Success      200  {object}  APIResponse
// @Router       /billing/summaries/{id}/paid [post]
func (s *Server) MarkBillAsPaid(c *gin.Context) {
	summaryID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id must be a valid summary id"))
		return
	}

	if err := s.billing.MarkBillAsPaid(c.Request.Context(), summaryID); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"paid": true})
}

func billingPeriodParams(c *gin.Context) (snowflake.ID, int, int, bool) {
	principalID, err := snowflake.ParseString(c.Param("principal_id"))
	if err != nil {
		AbortWithError(c, newValidationError("principal_id must be a valid id"))
		return 0, 0, 0, false
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year must be an integer"))
		return 0, 0, 0, false
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		AbortWithError(c, newValidationError("month must be an integer"))
		return 0, 0, 0, false
	}
	return principalID, year, month, true
}
