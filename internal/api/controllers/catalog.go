package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/catalog"
	"github.com/datallboy/optolib/internal/domain"
)

type CatalogController struct {
	App *app.Context
}

// stateStatus maps an error state to 503 so clients can retry.
func stateStatus(s catalog.Status) int {
	if s == catalog.StatusError {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (ctrl *CatalogController) Home(c *echo.Context) error {
	st := ctrl.App.Catalog.RefreshHome(c.Request().Context())
	return c.JSON(stateStatus(st.Status), st)
}

func (ctrl *CatalogController) Categories(c *echo.Context) error {
	st := ctrl.App.Catalog.RefreshCategories(c.Request().Context())
	return c.JSON(stateStatus(st.Status), st)
}

func (ctrl *CatalogController) CategoryBooks(c *echo.Context) error {
	st := ctrl.App.Catalog.OpenCategory(c.Request().Context(), c.Param("id"))
	return c.JSON(stateStatus(st.Status), st)
}

func (ctrl *CatalogController) Search(c *echo.Context) error {
	st := ctrl.App.Catalog.Search(c.Request().Context(), c.QueryParam("q"))
	return c.JSON(stateStatus(st.Status), st)
}

func (ctrl *CatalogController) RecentSearches(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Catalog.Recent.List())
}

func (ctrl *CatalogController) ClearRecentSearches(c *echo.Context) error {
	ctrl.App.Catalog.Recent.Clear()
	return c.NoContent(http.StatusNoContent)
}

// Book returns one catalog book together with its download state.
func (ctrl *CatalogController) Book(c *echo.Context) error {
	key := domain.BookKey(c.Param("key"))

	b, err := ctrl.App.Catalog.Service().Book(c.Request().Context(), key)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, BookView{
		Book:  b,
		Key:   b.Key(),
		State: ctrl.App.Library.State(b.Key()),
	})
}

// Status names the catalog backend and the tables available offline.
func (ctrl *CatalogController) Status(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Catalog.Service().Backend())
}
