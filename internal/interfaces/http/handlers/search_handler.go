package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemScreen/internal/infrastructure/search/opensearch"
)

// NameSearcher answers full-text name queries over the molecule index.
type NameSearcher interface {
	SearchByName(ctx context.Context, query string, offset, limit int) (*opensearch.NameSearchResult, error)
	Autocomplete(ctx context.Context, prefix string, limit int) (*opensearch.NameSearchResult, error)
}

// SearchHandler serves the name search endpoints.
type SearchHandler struct {
	searcher NameSearcher
}

func NewSearchHandler(searcher NameSearcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// ByName handles GET /api/v1/search/molecules?q=...
func (h *SearchHandler) ByName(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondValidation(c, "q is required")
		return
	}
	page := parsePagination(c)

	result, err := h.searcher.SearchByName(c.Request.Context(), query, page.Offset(), page.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	page.Total = result.Total
	respondPage(c, result.Hits, page)
}

// Autocomplete handles GET /api/v1/search/autocomplete?prefix=...
func (h *SearchHandler) Autocomplete(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		respondValidation(c, "prefix is required")
		return
	}
	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondValidation(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	result, err := h.searcher.Autocomplete(c.Request.Context(), prefix, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, result.Hits)
}
