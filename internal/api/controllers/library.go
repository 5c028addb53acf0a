package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/domain"
)

type LibraryController struct {
	App *app.Context
}

func (ctrl *LibraryController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, LibraryResponse{
		Downloaded: ctrl.App.Library.List(),
		States:     ctrl.App.Library.Snapshot().States(),
	})
}

func (ctrl *LibraryController) State(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Library.State(domain.BookKey(c.Param("key"))))
}

// Events streams every library snapshot as server-sent events until the client goes away.
func (ctrl *LibraryController) Events(c *echo.Context) error {
	snaps, cancel := ctrl.App.Library.Subscribe()
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	ctx := c.Request().Context()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			data, err := json.Marshal(snap.States())
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: library\ndata: %s\n\n", data); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}

// File serves the local PDF of a downloaded book.
func (ctrl *LibraryController) File(c *echo.Context) error {
	key := domain.BookKey(c.Param("key"))

	f, ok := ctrl.App.Library.DownloadedFile(key)
	if !ok {
		return respondError(c, fmt.Errorf("%w: %s", domain.ErrNotDownloaded, key))
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return respondError(c, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return respondError(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "application/pdf")
	w.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", f.Title+".pdf"))
	http.ServeContent(w, c.Request(), info.Name(), info.ModTime(), file)
	return nil
}

// Download starts a transfer. With ?wait=true it blocks until the transfer
// ends; otherwise it answers 202 with a job to poll.
func (ctrl *LibraryController) Download(c *echo.Context) error {
	key := domain.BookKey(c.Param("key"))

	var req DownloadRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.URL) == "" {
		b, err := ctrl.App.Catalog.Service().Book(c.Request().Context(), key)
		if err != nil {
			return respondError(c, err)
		}
		// A featured key is stored under the catalog book it features
		key, req.Title, req.URL = b.Key(), b.Title, b.PDFURL
	}

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		ok := ctrl.App.Engine.DownloadBook(c.Request().Context(), key, req.Title, req.URL)
		status := http.StatusOK
		if !ok {
			status = http.StatusBadGateway
		}
		return c.JSON(status, DownloadResponse{Downloaded: ok, State: ctrl.App.Library.State(key)})
	}

	job := ctrl.App.Jobs.Submit(key, req.Title, req.URL)
	return c.JSON(http.StatusAccepted, job)
}

func (ctrl *LibraryController) Remove(c *echo.Context) error {
	if err := ctrl.App.Library.Remove(c.Request().Context(), domain.BookKey(c.Param("key"))); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *LibraryController) Clear(c *echo.Context) error {
	if err := ctrl.App.Library.ClearAll(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reconcile drops stale records. With ?deep=true every file is re-hashed too.
func (ctrl *LibraryController) Reconcile(c *echo.Context) error {
	ctx := c.Request().Context()
	dropped, err := ctrl.App.Library.Reconcile(ctx)
	if err != nil {
		return respondError(c, err)
	}
	if deep, _ := strconv.ParseBool(c.QueryParam("deep")); deep {
		corrupt, err := ctrl.App.Library.VerifyHashes(ctx)
		if err != nil {
			return respondError(c, err)
		}
		dropped = append(dropped, corrupt...)
	}
	if dropped == nil {
		dropped = []domain.BookKey{}
	}
	return c.JSON(http.StatusOK, map[string][]domain.BookKey{"dropped": dropped})
}

func (ctrl *LibraryController) Jobs(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Jobs.All())
}

func (ctrl *LibraryController) Job(c *echo.Context) error {
	job, ok := ctrl.App.Jobs.Get(c.Param("id"))
	if !ok {
		return respondError(c, fmt.Errorf("%w: job %s", domain.ErrNotFound, c.Param("id")))
	}
	return c.JSON(http.StatusOK, job)
}
