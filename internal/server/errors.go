package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/internal/errs"
	paymentdomain "github.com/smallbiznis/fuelledger/internal/payment/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errs.New(errs.KindValidation, "invalid_request", "invalid request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:       http.StatusBadRequest,
	errs.KindNotFound:         http.StatusNotFound,
	errs.KindConflict:         http.StatusConflict,
	errs.KindInvalidState:     http.StatusConflict,
	errs.KindOverpayment:      http.StatusUnprocessableEntity,
	errs.KindStoreTimeout:     http.StatusGatewayTimeout,
	errs.KindStoreUnavailable: http.StatusServiceUnavailable,
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    string(errs.KindValidation),
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorPayload{
			Type:    string(errs.KindStoreTimeout),
			Message: "request timed out",
		}
	}

	var coded *errs.Error
	if !errors.As(err, &coded) {
		return http.StatusInternalServerError, errorPayload{
			Type:    string(errs.KindInternal),
			Message: "internal server error",
		}
	}

	status, ok := kindStatus[coded.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	payload := errorPayload{
		Type:    string(coded.Kind),
		Code:    coded.Code,
		Message: coded.Message,
	}
	if status >= http.StatusInternalServerError {
		payload.Message = http.StatusText(status)
	}
	if coded.Kind == errs.KindValidation {
		payload.Errors = []ValidationError{{
			Field:   validationErrorField(coded.Code),
			Code:    coded.Code,
			Message: coded.Message,
		}}
	}

	var overpay *paymentdomain.OverpaymentError
	if errors.As(err, &overpay) {
		payload.Details = map[string]any{
			"invoice_id":   overpay.InvoiceID.String(),
			"total_amount": overpay.Total.StringFixed(2),
			"paid_amount":  overpay.Paid.StringFixed(2),
			"amount":       overpay.Amount.StringFixed(2),
			"excess":       overpay.Excess.StringFixed(2),
		}
	}
	return status, payload
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// classifyErrorForLog feeds the request logger a kind and code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if asValidationErrors(err) != nil {
		return string(errs.KindValidation), "invalid_request"
	}
	return string(errs.KindOf(err)), errs.CodeOf(err)
}
