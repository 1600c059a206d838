package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/goliatone/go-router"
)

//go:embed views
var viewsFS embed.FS

func serve(ctx context.Context, app *App) error {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to scope embedded views")
	}

	engine := django.NewFileSystem(http.FS(views), ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		})
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	settings := app.Config().Registration
	resolver := registration.NewResolver(app.registry, settings)

	registration.RegisterRegistrationRoutes(srv.Router(),
		registration.WithControllerResolver(resolver),
		registration.WithControllerConfig(settings),
		registration.WithControllerLogger(app.GetLogger("http")),
		registration.WithControllerExtraContext(registration.TemplateHelpers(settings)),
	)

	srv.Router().Get("/", func(c router.Context) error {
		return c.Redirect("/register", router.StatusSeeOther)
	})

	logger := app.GetLogger("server")
	logger.Info("listening", "address", app.Config().Server.Address)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(app.Config().Server.Address)
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, errors.CategoryInternal, "server stopped")
	case <-WaitExitSignal():
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
