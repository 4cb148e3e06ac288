package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

const dateOnlyLayout = "2006-01-02"

// pathID reads a snowflake id path parameter.
func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return parsed, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// timeRange reads the optional from/to query parameters.
func timeRange(c *gin.Context) (*time.Time, *time.Time, error) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		return nil, nil, newValidationError("from", "invalid_from", "invalid from")
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		return nil, nil, newValidationError("to", "invalid_to", "invalid to")
	}
	return from, to, nil
}

// pageParams reads the page_token and page_size query parameters.
func pageParams(c *gin.Context) (pagination.Pagination, error) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		return pagination.Pagination{}, pagination.ErrInvalidPageSize.Wrap(err)
	}
	page.PageToken = strings.TrimSpace(page.PageToken)
	return page, nil
}
