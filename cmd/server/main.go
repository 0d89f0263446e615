package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"genai-demos/internal/app"
	"genai-demos/internal/httputil"
	"genai-demos/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	deps, err := app.Build()
	if err != nil {
		logger.New("error").Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, deps app.Deps) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("server listening", "addr", srv.Addr, "default_model", deps.Registry.DefaultName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.Log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(deps app.Deps) *chi.Mux {
	// Leave room for the outbound model call to time out and report first.
	r := httputil.NewRouter(deps.Log, deps.Config.RequestTimeout+30*time.Second)

	r.Get("/healthz", httputil.HealthHandler(deps))
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestSize(deps.Config.MaxUploadSize))

		r.Get("/models", modelsHandler(deps))

		r.Post("/echo", echoHandler(deps))
		r.Post("/ask", askHandler(deps))
		r.Post("/chat", chatHandler(deps))
		r.Post("/summarize", summarizeHandler(deps))
		r.Post("/compare", compareHandler(deps))
		r.Post("/extract", extractHandler(deps))

		r.Post("/documents/upload", uploadHandler(deps))
		r.Get("/documents", listDocumentsHandler(deps))
		r.Get("/documents/{name}", getDocumentHandler(deps))

		r.Get("/prompts/{category}", listPromptsHandler(deps))
		r.Post("/prompts/{category}", saveAsPromptHandler(deps))
		r.Get("/prompts/{category}/{name}", getPromptHandler(deps))
		r.Put("/prompts/{category}/{name}", savePromptHandler(deps))

		r.Get("/infogather/form", infoGatherFormHandler(deps))
		r.Post("/infogather", infoGatherHandler(deps))
		r.Post("/websearch", webSearchHandler(deps))
	})
	return r
}
