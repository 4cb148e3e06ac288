package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	saledomain "github.com/smallbiznis/fuelledger/internal/sale/domain"
)

type recordSaleRequest struct {
	StationID       snowflake.ID    `json:"station_id"`
	DispenserID     snowflake.ID    `json:"dispenser_id"`
	EmployeeID      snowflake.ID    `json:"employee_id"`
	CustomerID      *snowflake.ID   `json:"customer_id"`
	VehicleID       *snowflake.ID   `json:"vehicle_id"`
	FuelTypeID      snowflake.ID    `json:"fuel_type_id"`
	QuantityLiters  decimal.Decimal `json:"quantity_liters"`
	PricePerLiter   decimal.Decimal `json:"price_per_liter"`
	PaymentMethod   string          `json:"payment_method"`
	TransactionDate *time.Time      `json:"transaction_date"`
}

func (s *Server) RecordSale(c *gin.Context) {
	var req recordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.saleSvc.RecordSale(c.Request.Context(), saledomain.RecordSaleRequest{
		StationID:       req.StationID,
		DispenserID:     req.DispenserID,
		EmployeeID:      req.EmployeeID,
		CustomerID:      req.CustomerID,
		VehicleID:       req.VehicleID,
		FuelTypeID:      req.FuelTypeID,
		QuantityLiters:  req.QuantityLiters,
		PricePerLiter:   req.PricePerLiter,
		PaymentMethod:   saledomain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		TransactionDate: req.TransactionDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetSale(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.saleSvc.GetSale(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStationSales(c *gin.Context) {
	s.listSales(c, func(req *saledomain.ListSalesRequest, id snowflake.ID) { req.StationID = id })
}

func (s *Server) ListVehicleSales(c *gin.Context) {
	s.listSales(c, func(req *saledomain.ListSalesRequest, id snowflake.ID) { req.VehicleID = id })
}

func (s *Server) ListCustomerSales(c *gin.Context) {
	s.listSales(c, func(req *saledomain.ListSalesRequest, id snowflake.ID) { req.CustomerID = id })
}

func (s *Server) listSales(c *gin.Context, scope func(*saledomain.ListSalesRequest, snowflake.ID)) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	page, err := pageParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := saledomain.ListSalesRequest{Pagination: page, From: from, To: to}
	scope(&req, id)

	resp, err := s.saleSvc.ListSales(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Sales, "page_info": resp.PageInfo})
}

// GetStationCashSales totals cash sales for a station, optionally narrowed
// to one dispenser and employee.
func (s *Server) GetStationCashSales(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from, to, err := timeRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if from == nil || to == nil {
		AbortWithError(c, newValidationError("from", "invalid_time_range", "from and to are required"))
		return
	}

	filter := saledomain.CashSalesFilter{StationID: id, Start: *from, End: *to}
	if raw := strings.TrimSpace(c.Query("dispenser_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("dispenser_id", "invalid_dispenser_id", "invalid dispenser_id"))
			return
		}
		filter.DispenserID = parsed
	}
	if raw := strings.TrimSpace(c.Query("employee_id")); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("employee_id", "invalid_employee_id", "invalid employee_id"))
			return
		}
		filter.EmployeeID = parsed
	}

	total, err := s.saleSvc.TotalCashSales(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"station_id": id,
		"from":       filter.Start,
		"to":         filter.End,
		"total":      total,
	}})
}
