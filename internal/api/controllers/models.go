package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/optolib/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// DownloadRequest may omit both fields; the book is then resolved from the catalog.
type DownloadRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type DownloadResponse struct {
	Downloaded bool                 `json:"downloaded"`
	State      domain.DownloadState `json:"state"`
}

type LibraryResponse struct {
	Downloaded []domain.DownloadRecord `json:"downloaded"`
	States     []domain.DownloadState  `json:"states"`
}

// BookView is a catalog book with its local download state.
type BookView struct {
	domain.Book
	Key   domain.BookKey       `json:"key"`
	State domain.DownloadState `json:"state"`
}

type PageRequest struct {
	Page int `json:"page"`
}

type BookmarkRequest struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

type NoteRequest struct {
	Page *int   `json:"page,omitempty"`
	Body string `json:"body"`
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// bindJSON decodes the request body into dst. An empty body leaves dst untouched.
func bindJSON(c *echo.Context, dst any) error {
	err := json.NewDecoder(c.Request().Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrInvalidInput, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotDownloaded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}
