package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/domain"
)

type ReaderController struct {
	App *app.Context
}

// Open hands the renderer a local path and the page to start on.
func (ctrl *ReaderController) Open(c *echo.Context) error {
	s, err := ctrl.App.Reader.Open(c.Request().Context(), domain.BookKey(c.Param("key")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (ctrl *ReaderController) SetPage(c *echo.Context) error {
	var req PageRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := ctrl.App.Reader.SetPage(c.Request().Context(), domain.BookKey(c.Param("key")), req.Page); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *ReaderController) Bookmarks(c *echo.Context) error {
	marks, err := ctrl.App.Reader.Bookmarks(c.Request().Context(), domain.BookKey(c.Param("key")))
	if err != nil {
		return respondError(c, err)
	}
	if marks == nil {
		marks = []domain.Bookmark{}
	}
	return c.JSON(http.StatusOK, marks)
}

func (ctrl *ReaderController) AllBookmarks(c *echo.Context) error {
	marks, err := ctrl.App.Reader.Bookmarks(c.Request().Context(), "")
	if err != nil {
		return respondError(c, err)
	}
	if marks == nil {
		marks = []domain.Bookmark{}
	}
	return c.JSON(http.StatusOK, marks)
}

func (ctrl *ReaderController) AddBookmark(c *echo.Context) error {
	var req BookmarkRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	b, err := ctrl.App.Reader.AddBookmark(c.Request().Context(), domain.BookKey(c.Param("key")), req.Title, req.Page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (ctrl *ReaderController) RemoveBookmark(c *echo.Context) error {
	if err := ctrl.App.Reader.RemoveBookmark(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *ReaderController) Notes(c *echo.Context) error {
	notes, err := ctrl.App.Reader.Notes(c.Request().Context(), domain.BookKey(c.Param("key")))
	if err != nil {
		return respondError(c, err)
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (ctrl *ReaderController) AddNote(c *echo.Context) error {
	var req NoteRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	n, err := ctrl.App.Reader.AddNote(c.Request().Context(), domain.BookKey(c.Param("key")), req.Page, req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (ctrl *ReaderController) UpdateNote(c *echo.Context) error {
	var req NoteRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	n, err := ctrl.App.Reader.UpdateNote(c.Request().Context(), c.Param("id"), req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

func (ctrl *ReaderController) RemoveNote(c *echo.Context) error {
	if err := ctrl.App.Reader.RemoveNote(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
