package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	shiftdomain "github.com/smallbiznis/fuelledger/internal/shift/domain"
)

type fuelReadingRequest struct {
	FuelTypeID     snowflake.ID    `json:"fuel_type_id"`
	InitialReading decimal.Decimal `json:"initial_reading"`
}

type startShiftRequest struct {
	EmployeeID   snowflake.ID         `json:"employee_id"`
	StationID    snowflake.ID         `json:"station_id"`
	DispenserID  snowflake.ID         `json:"dispenser_id"`
	InitialCash  decimal.Decimal      `json:"initial_cash"`
	FuelReadings []fuelReadingRequest `json:"fuel_readings"`
	Notes        string               `json:"notes"`
}

type endShiftRequest struct {
	// FinalReadings is keyed by fuel type id.
	FinalReadings map[snowflake.ID]decimal.Decimal `json:"final_readings"`
	CashCollected decimal.Decimal                  `json:"cash_collected"`
	Notes         *string                          `json:"notes"`
}

func (s *Server) StartShift(c *gin.Context) {
	var req startShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	readings := make([]shiftdomain.FuelReadingInput, 0, len(req.FuelReadings))
	for _, reading := range req.FuelReadings {
		readings = append(readings, shiftdomain.FuelReadingInput{
			FuelTypeID:     reading.FuelTypeID,
			InitialReading: reading.InitialReading,
		})
	}

	resp, err := s.shiftSvc.StartShift(c.Request.Context(), shiftdomain.StartShiftRequest{
		EmployeeID:   req.EmployeeID,
		StationID:    req.StationID,
		DispenserID:  req.DispenserID,
		InitialCash:  req.InitialCash,
		FuelReadings: readings,
		Notes:        req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) EndShift(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req endShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shiftSvc.EndShift(c.Request.Context(), shiftdomain.EndShiftRequest{
		ShiftID:       id,
		FinalReadings: req.FinalReadings,
		CashCollected: req.CashCollected,
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetShift(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.shiftSvc.GetShift(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCurrentShift(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.shiftSvc.GetCurrentShift(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStationShifts(c *gin.Context) {
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

	resp, err := s.shiftSvc.ListShifts(c.Request.Context(), shiftdomain.ListShiftsRequest{
		Pagination: page,
		StationID:  id,
		From:       from,
		To:         to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Shifts, "page_info": resp.PageInfo})
}
