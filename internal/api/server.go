// Package api serves the HTTP surface: image uploads, record queries,
// processing triggers, settings, the websocket event stream, and the
// Prometheus endpoint.
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/tuanvc/snaptext/internal/config"
	"github.com/tuanvc/snaptext/internal/enhance"
	"github.com/tuanvc/snaptext/internal/engine"
	"github.com/tuanvc/snaptext/internal/metrics"
	"github.com/tuanvc/snaptext/internal/processor"
	"github.com/tuanvc/snaptext/internal/record"
	"github.com/tuanvc/snaptext/internal/settings"
)

// uploadBodyLimit leaves room above the per-image admission ceiling so
// oversized payloads reach validation and get the proper rejection
// reason instead of a bare transport error.
const uploadBodyLimit = 64 << 20

// Deps are the constructed collaborators the server routes to.
type Deps struct {
	Store     *record.Store
	Settings  *settings.Store
	Processor *processor.Processor
	Enhancer  *enhance.Enhancer
	Engine    engine.Engine
	Metrics   *metrics.Metrics
}

// Server handles the HTTP API and the websocket event stream.
type Server struct {
	app       *fiber.App
	config    *config.Config
	store     *record.Store
	settings  *settings.Store
	processor *processor.Processor
	enhancer  *enhance.Enhancer
	engine    engine.Engine
	metrics   *metrics.Metrics
	logger    *zap.Logger

	metricsHandler fasthttp.RequestHandler
}

// New creates the API server.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    uploadBodyLimit,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		store:     deps.Store,
		settings:  deps.Settings,
		processor: deps.Processor,
		enhancer:  deps.Enhancer,
		engine:    deps.Engine,
		metrics:   deps.Metrics,
		logger:    logger,
		metricsHandler: fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}),
		),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Server.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, X-Filename",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api")

	api.Post("/images", s.handleUpload)
	api.Post("/images/paste", s.handlePaste)
	api.Get("/images", s.handleListImages)
	api.Get("/images/:id", s.handleGetImage)
	api.Get("/images/:id/preview", s.handleGetPreview)
	api.Get("/images/:id/text", s.handleDownloadText)
	api.Patch("/images/:id/text", s.handleEditText)
	api.Post("/images/:id/process", s.handleProcessImage)
	api.Post("/images/:id/enhance", s.handleEnhanceImage)
	api.Delete("/images/:id", s.handleRemoveImage)
	api.Delete("/images", s.handleClearImages)
	api.Post("/process", s.handleProcessAll)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handleUpdateSettings)

	s.app.Get("/ws", websocket.New(s.handleWebSocket))

	webPaths := []string{"./web/dist", "./web", "/usr/share/snaptext/web"}
	var webPath string
	for _, p := range webPaths {
		if _, err := os.Stat(p); err == nil {
			webPath = p
			break
		}
	}

	if webPath != "" {
		s.app.Static("/", webPath)
		s.app.Get("/*", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(webPath, "index.html"))
		})
	} else {
		s.app.Get("/", func(c *fiber.Ctx) error {
			return c.SendString(`<!DOCTYPE html>
<html>
<head><title>SnapText</title></head>
<body style="font-family: sans-serif; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>SnapText</h1>
<p>Web UI files not found. Please ensure the web/dist directory exists.</p>
<p>You can still use the API at <code>/api</code>.</p>
</body>
</html>`)
		})
	}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
