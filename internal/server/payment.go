package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/fuelledger/internal/payment/domain"
)

type recordPaymentRequest struct {
	CustomerID      snowflake.ID    `json:"customer_id"`
	InvoiceID       *snowflake.ID   `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     string          `json:"payment_date"`
	Method          string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return
	}

	resp, err := s.paymentSvc.RecordPayment(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		CustomerID:      req.CustomerID,
		InvoiceID:       req.InvoiceID,
		Amount:          req.Amount,
		PaymentDate:     derefTime(paymentDate),
		Method:          paymentdomain.Method(strings.TrimSpace(req.Method)),
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		Notes:           req.Notes,
	})
	if err != nil {
		s.abortPaymentError(c, resp, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ApplyPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ApplyPaymentToInvoice(c.Request.Context(), id)
	if err != nil {
		s.abortPaymentError(c, resp, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerPayments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.ListPayments(c.Request.Context(), paymentdomain.ListPaymentsRequest{
		Pagination: page,
		CustomerID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

// abortPaymentError keeps the recorded payment in the body when the error
// came after the payment was stored.
func (s *Server) abortPaymentError(c *gin.Context, resp paymentdomain.RecordPaymentResult, err error) {
	var overpay *paymentdomain.OverpaymentError
	if !resp.PaymentRecorded || !errors.As(err, &overpay) {
		AbortWithError(c, err)
		return
	}

	status, payload := mapError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": payload, "data": resp})
}
