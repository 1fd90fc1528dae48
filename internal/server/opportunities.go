package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/campusbridge/discovery/internal/runtime"
	"github.com/campusbridge/discovery/internal/store"
)

// OpportunitiesHandler serves the stored opportunity board.
type OpportunitiesHandler struct {
	Store *store.Store
}

func (h *OpportunitiesHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/categories", h.categories)
	g.POST("/:id/bookmark", h.bookmark)
}

func (h *OpportunitiesHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ops, err := h.Store.ListOpportunities(c.Request().Context(), c.QueryParam("q"), c.QueryParam("category"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, OpportunitiesResponse{Opportunities: ops, Total: len(ops)})
}

func (h *OpportunitiesHandler) categories(c echo.Context) error {
	cats, err := h.Store.ListCategories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]string{"categories": cats})
}

func (h *OpportunitiesHandler) bookmark(c echo.Context) error {
	userID, ok := runtime.SubjectFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	if err := h.Store.CreateBookmark(c.Request().Context(), userID, c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
