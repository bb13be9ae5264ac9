package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error codes returned to clients. Gate scanners and the admin UI branch on
// these, so they are part of the API contract.
const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeDuplicate       = "DUPLICATE"
	CodeDependency      = "DEPENDENCY_FAILED"
	CodeForbidden       = "FORBIDDEN"
	CodeAlreadyScanned  = "ALREADY_SCANNED"
	CodeAlreadyResolved = "ALREADY_RESOLVED"
	CodeNotActive       = "LISTING_NOT_ACTIVE"
	CodeSoldOut         = "SOLD_OUT"
	CodePurchaseCap     = "PURCHASE_CAP_REACHED"
)

// APIError is a structured error response from a service.
type APIError struct {
	StatusCode int            `json:"status_code"`
	Code       string         `json:"code"`
	Message    string         `json:"error"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status code %d, code %s, message: %s", e.StatusCode, e.Code, e.Message)
}

func New(statusCode int, code, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

func Validation(message string) *APIError {
	return New(http.StatusBadRequest, CodeValidation, message)
}

func NotFound(entity string) *APIError {
	return New(http.StatusNotFound, CodeNotFound, entity+" not found")
}

func Conflict(code, message string) *APIError {
	return New(http.StatusConflict, code, message)
}

func Duplicate(message string) *APIError {
	return New(http.StatusConflict, CodeDuplicate, message)
}

func Forbidden(message string) *APIError {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func Dependency(message string, detail map[string]any) *APIError {
	e := New(http.StatusBadGateway, CodeDependency, message)
	e.Detail = detail
	return e
}

// AlreadyScanned reports a second redemption attempt. The first redemption's
// timestamp rides along so the gate operator can see when the ticket was used.
func AlreadyScanned(redeemedAt time.Time) *APIError {
	e := Conflict(CodeAlreadyScanned, "ticket has already been scanned")
	e.Detail = map[string]any{"redeemedAt": redeemedAt}
	return e
}

// Respond writes err as a JSON response. Unrecognized errors become opaque 500s.
func Respond(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		body := gin.H{
			"error": apiErr.Message,
			"code":  apiErr.Code,
		}
		for k, v := range apiErr.Detail {
			body[k] = v
		}
		c.JSON(apiErr.StatusCode, body)
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}
