package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Harvest/internal/api/downloads"
	"github.com/hbomb79/Harvest/internal/api/files"
	"github.com/hbomb79/Harvest/internal/api/gen"
	"github.com/hbomb79/Harvest/internal/api/history"
	"github.com/hbomb79/Harvest/internal/http/websocket"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	AppName    = "Harvest"
	AppVersion = "1.0.0"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" toml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8000" validate:"required,hostname_port"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// acquisitionService is the union of everything the gateway needs from
	// the acquisition pipeline.
	acquisitionService interface {
		downloads.Service
		taskSource
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to create the routes Harvest exposes, and to manage ongoing web socket connections
	// and the broadcasting of task activity over them.
	RestGateway struct {
		*broadcaster
		config             *RestConfig
		ec                 *echo.Echo
		socket             *websocket.SocketHub
		downloadController controller
		fileController     controller
		historyController  controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The history store may be nil
// if the journal is disabled.
func NewRestGateway(
	config *RestConfig,
	service acquisitionService,
	artifacts files.Store,
	historyStore history.Store,
	gatherer prometheus.Gatherer,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true
	ec.HTTPErrorHandler = gen.GetHTTPErrorHandler(ec.DefaultHTTPErrorHandler)

	validate := validator.New()
	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:        newBroadcaster(socket, service),
		config:             config,
		ec:                 ec,
		socket:             socket,
		downloadController: downloads.New(validate, service),
		fileController:     files.New(artifacts),
		historyController:  history.New(validate, historyStore),
	}

	socket.WithConnectionCallback(gateway.connectionPayload)
	socket.BindCommand("TASK_LIST", gateway.wsTaskList).
		BindCommand("TASK_GET", gateway.wsTaskGet)

	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())
	ec.Pre(middleware.RemoveTrailingSlash())

	ec.GET("/", gateway.root)
	ec.GET("/health", gateway.health)
	ec.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	ec.GET("/api/activity/ws", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	apiGroup := ec.Group("/api")
	gateway.downloadController.SetRoutes(apiGroup)

	filesGroup := ec.Group("/api/files")
	gateway.fileController.SetRoutes(filesGroup)

	historyGroup := ec.Group("/api/history")
	gateway.historyController.SetRoutes(historyGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Emit(logger.NEW, "Listening on %s\n", gateway.config.HostAddr)
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// ServeHTTP allows the gateway to be mounted directly on an http.Server (or
// an httptest server) without calling Run.
func (gateway *RestGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gateway.ec.ServeHTTP(w, r)
}

func (gateway *RestGateway) health(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]string{"status": "healthy", "app": AppName})
}

func (gateway *RestGateway) root(ec echo.Context) error {
	return ec.JSON(http.StatusOK, map[string]any{
		"name":    AppName,
		"version": AppVersion,
		"endpoints": map[string]string{
			"download": "POST /api/download",
			"status":   "GET /api/status/{task_id}",
			"parse":    "POST /api/parse",
			"files":    "GET /api/files/{filename}",
			"history":  "GET /api/history",
			"activity": "GET /api/activity/ws",
			"health":   "GET /health",
			"metrics":  "GET /metrics",
		},
	})
}
