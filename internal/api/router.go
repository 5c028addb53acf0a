package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/optolib/internal/api/controllers"
	"github.com/datallboy/optolib/internal/app"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	catalogCtrl := &controllers.CatalogController{App: app}
	libraryCtrl := &controllers.LibraryController{App: app}
	readerCtrl := &controllers.ReaderController{App: app}
	authCtrl := &controllers.AuthController{App: app}

	e.GET("/api/health", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Catalog
	e.GET("/api/catalog/status", catalogCtrl.Status)
	e.GET("/api/catalog/home", catalogCtrl.Home)
	e.GET("/api/catalog/categories", catalogCtrl.Categories)
	e.GET("/api/catalog/categories/:id/books", catalogCtrl.CategoryBooks)
	e.GET("/api/catalog/books/:key", catalogCtrl.Book)
	e.GET("/api/catalog/search", catalogCtrl.Search)
	e.GET("/api/catalog/search/recent", catalogCtrl.RecentSearches)
	e.DELETE("/api/catalog/search/recent", catalogCtrl.ClearRecentSearches)

	// Local library
	e.GET("/api/library", libraryCtrl.List)
	e.DELETE("/api/library", libraryCtrl.Clear)
	e.GET("/api/library/events", libraryCtrl.Events)
	e.POST("/api/library/reconcile", libraryCtrl.Reconcile)
	e.GET("/api/library/:key", libraryCtrl.State)
	e.GET("/api/library/:key/file", libraryCtrl.File)
	e.POST("/api/library/:key/download", libraryCtrl.Download)
	e.DELETE("/api/library/:key", libraryCtrl.Remove)
	e.GET("/api/jobs", libraryCtrl.Jobs)
	e.GET("/api/jobs/:id", libraryCtrl.Job)

	// Reader
	e.POST("/api/reader/:key/open", readerCtrl.Open)
	e.PUT("/api/reader/:key/page", readerCtrl.SetPage)
	e.GET("/api/reader/:key/bookmarks", readerCtrl.Bookmarks)
	e.POST("/api/reader/:key/bookmarks", readerCtrl.AddBookmark)
	e.GET("/api/reader/:key/notes", readerCtrl.Notes)
	e.POST("/api/reader/:key/notes", readerCtrl.AddNote)
	e.GET("/api/bookmarks", readerCtrl.AllBookmarks)
	e.DELETE("/api/bookmarks/:id", readerCtrl.RemoveBookmark)
	e.PUT("/api/notes/:id", readerCtrl.UpdateNote)
	e.DELETE("/api/notes/:id", readerCtrl.RemoveNote)

	// Auth
	e.POST("/api/auth/signin", authCtrl.SignIn)
	e.POST("/api/auth/signup", authCtrl.SignUp)
	e.POST("/api/auth/reset", authCtrl.ResetPassword)
	e.POST("/api/auth/otp", authCtrl.SendOTP)
	e.POST("/api/auth/otp/verify", authCtrl.VerifyOTP)
	e.POST("/api/auth/refresh", authCtrl.Refresh)
	e.POST("/api/auth/signout", authCtrl.SignOut)
	e.GET("/api/auth/session", authCtrl.Session)
}
