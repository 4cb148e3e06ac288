package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/fuelledger/internal/invoice/domain"
)

type invoiceItemRequest struct {
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TotalPrice  *decimal.Decimal `json:"total_price"`
	SaleID      *snowflake.ID    `json:"sale_id"`
}

type createInvoiceRequest struct {
	CustomerID    snowflake.ID         `json:"customer_id"`
	InvoiceNumber string               `json:"invoice_number"`
	IssueDate     string               `json:"issue_date"`
	DueDate       string               `json:"due_date"`
	Items         []invoiceItemRequest `json:"items"`
	Notes         string               `json:"notes"`
	TotalAmount   *decimal.Decimal     `json:"total_amount"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issueDate, err := parseOptionalTime(req.IssueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("issue_date", "invalid_issue_date", "invalid issue_date"))
		return
	}
	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	items := make([]invoicedomain.InvoiceItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoicedomain.InvoiceItemInput{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			SaleID:      item.SaleID,
		})
	}

	resp, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		CustomerID:    req.CustomerID,
		IssueDate:     derefTime(issueDate),
		DueDate:       derefTime(dueDate),
		Items:         items,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Notes:         req.Notes,
		TotalAmount:   req.TotalAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceItems(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.GetInvoiceItemsWithContext(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerInvoices(c *gin.Context) {
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

	resp, err := s.invoiceSvc.ListInvoices(c.Request.Context(), invoicedomain.ListInvoicesRequest{
		Pagination: page,
		CustomerID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func derefTime(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
