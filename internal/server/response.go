package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
)

// APIResponse is the envelope consumed by the admin CLI: a success flag,
// optional payload, and an error-message list on failure.
type APIResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func newValidationError(message string) error {
	return &requestError{status: http.StatusBadRequest, message: message}
}

func AbortWithError(c *gin.Context, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		c.AbortWithStatusJSON(reqErr.status, APIResponse{Success: false, Errors: []string{reqErr.message}})
	case errors.Is(err, billingdomain.ErrDuplicatePeriod):
		c.AbortWithStatusJSON(http.StatusConflict, APIResponse{Success: false, Errors: []string{"monthly summary already exists for this period"}})
	case errors.Is(err, billingdomain.ErrSummaryNotProcessed):
		c.AbortWithStatusJSON(http.StatusConflict, APIResponse{Success: false, Errors: []string{"summary has not been settled yet"}})
	case errors.Is(err, billingdomain.ErrSummaryNotFound),
		errors.Is(err, billingdomain.ErrPrincipalNotFound),
		errors.Is(err, tierdomain.ErrTierNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, APIResponse{Success: false, Errors: []string{err.Error()}})
	case errors.Is(err, billingdomain.ErrInvalidPeriod),
		errors.Is(err, usagedomain.ErrInvalidEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, APIResponse{Success: false, Errors: []string{err.Error()}})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIResponse{Success: false, Errors: []string{"internal error"}})
	}
}
