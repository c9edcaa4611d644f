// Package handlers contains the gin HTTP handlers for the ChemScreen API.
// Every handler consumes a narrow service interface so tests can drive it
// with in-memory fakes, and every response goes out wrapped in the shared
// APIResponse envelope.
package handlers

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemScreen/internal/interfaces/http/middleware"
	"github.com/turtacn/ChemScreen/pkg/errors"
	"github.com/turtacn/ChemScreen/pkg/types/common"
)

// respond writes a success envelope with the given status code.
func respond(c *gin.Context, status int, data any) {
	c.JSON(status, common.APIResponse[any]{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// respondPage writes a success envelope carrying pagination metadata.
func respondPage(c *gin.Context, data any, page common.Pagination) {
	c.JSON(http.StatusOK, common.APIResponse[any]{
		Success:    true,
		Data:       data,
		Pagination: &page,
		RequestID:  middleware.GetRequestID(c),
		Timestamp:  time.Now().UTC(),
	})
}

// respondError maps an application error onto its HTTP status and writes the
// error envelope. Non-AppError values are masked as internal errors so raw
// driver messages never reach callers.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	detail := &common.ErrorDetail{
		Code:    string(code),
		Message: "internal server error",
	}

	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		detail.Message = ae.Message
		detail.Detail = ae.Detail
	}

	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), common.APIResponse[any]{
		Success:   false,
		Error:     detail,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// respondValidation is a shorthand for malformed request bodies and params.
func respondValidation(c *gin.Context, msg string) {
	respondError(c, errors.New(errors.ErrCodeValidation, msg))
}

// parsePagination reads page and page_size query parameters; Normalize on the
// result applies the defaults and bounds.
func parsePagination(c *gin.Context) common.Pagination {
	page := common.Pagination{}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.Page = n
		}
	}
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.PageSize = n
		}
	}
	page.Normalize()
	return page
}
