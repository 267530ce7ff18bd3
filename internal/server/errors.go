package server

import (
	"errors"
	"net/http"

	invoicedomain "github.com/chasedesk/chasedesk/internal/invoice/domain"
	"github.com/gin-gonic/gin"
)

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e apiError) Error() string { return e.Code }

var (
	ErrInvalidRequest = apiError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "The request is malformed."}
	ErrNotFound       = apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Resource not found."}
	ErrInternal       = apiError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "Something went wrong."}
)

func AbortWithError(c *gin.Context, err error) {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": gin.H{"code": apiErr.Code, "message": apiErr.Message}})
		return
	}
	if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": gin.H{"code": "upstream_error", "message": err.Error()}})
}
