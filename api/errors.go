package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jacentio/telemetry-gateway/store"
)

// Error summaries returned in the "error" field.
const (
	errUnauthorized     = "Unauthorized"
	errNotConfigured    = "Storage not configured"
	errUnavailable      = "Storage unavailable"
	errStorage          = "Storage error"
	errUnexpected       = "Unexpected error"
	errNotFound         = "Not found"
	errBodyTooLarge     = "Request body too large"
	errMethodNotAllowed = "Method not allowed"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// abortWithError writes the error body and stops the handler chain.
func abortWithError(c *gin.Context, status int, summary, details string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: summary, Details: details})
}

// storeErrorSummary classifies a store or connector error.
func storeErrorSummary(err error) string {
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		return errNotConfigured
	case errors.Is(err, store.ErrUnavailable):
		return errUnavailable
	default:
		return errStorage
	}
}

// abortWithStoreError reports a failed store call as a 500.
func abortWithStoreError(c *gin.Context, err error) {
	abortWithError(c, http.StatusInternalServerError, storeErrorSummary(err), err.Error())
}
