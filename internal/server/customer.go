package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/fuelledger/internal/customer/domain"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type createCustomerRequest struct {
	Name         string          `json:"name"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	PaymentTerms string          `json:"payment_terms"`
	Status       string          `json:"status"`
}

type updateCustomerRequest struct {
	Name         *string          `json:"name"`
	CreditLimit  *decimal.Decimal `json:"credit_limit"`
	PaymentTerms *string          `json:"payment_terms"`
	Status       *string          `json:"status"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Create(c.Request.Context(), customerdomain.CreateCustomerRequest{
		Name:         strings.TrimSpace(req.Name),
		CreditLimit:  req.CreditLimit,
		PaymentTerms: strings.TrimSpace(req.PaymentTerms),
		Status:       customerdomain.Status(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	page, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListCustomerRequest{
		Pagination: page,
		Status:     customerdomain.Status(strings.TrimSpace(c.Query("status"))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Customers, "page_info": resp.PageInfo})
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.customerSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateCustomer(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := customerdomain.UpdateCustomerRequest{
		Name:         req.Name,
		CreditLimit:  req.CreditLimit,
		PaymentTerms: req.PaymentTerms,
	}
	if req.Status != nil {
		status := customerdomain.Status(strings.TrimSpace(*req.Status))
		update.Status = &status
	}

	resp, err := s.customerSvc.Update(c.Request.Context(), id, update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerLedger(c *gin.Context) {
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
	if s.ledgerSvc == nil {
		c.JSON(http.StatusOK, gin.H{"data": []any{}, "page_info": pagination.PageInfo{}})
		return
	}

	resp, err := s.ledgerSvc.ListEntries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		Pagination: page,
		CustomerID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}
