package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/blobsync/internal/api/controllers"
	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/blob"
)

// NewServer builds the block store emulator around store. A non-nil
// verifier makes every request prove it was signed with the account key.
func NewServer(app *app.Context, store *controllers.MemoryStore, verifier *blob.SharedKeySigner) *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, app, store, verifier)
	return e
}

func RegisterRoutes(e *echo.Echo, app *app.Context, store *controllers.MemoryStore, verifier *blob.SharedKeySigner) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Debug("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	if verifier != nil {
		e.Use(SharedKeyAuth(verifier))
	}

	blobCtrl := &controllers.BlobController{App: app, Store: store}

	e.GET("/:container/:blob", blobCtrl.HandleGet)
	e.PUT("/:container/:blob", blobCtrl.HandlePut)
}
