package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

type Dependencies struct {
	Center  DeviceCenter
	Metrics http.Handler
	Logger  zerolog.Logger
	Version string

	// AllowedOrigins lists browser origins, besides the API's own, that may
	// open the event stream.
	AllowedOrigins []string
}

// RegisterRoutes registers all API routes with the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, events *EventStream, metrics http.Handler) {
	e.GET("/health", h.HandleHealth)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	deviceGroup := e.Group("/api/devices")
	deviceGroup.GET("", h.HandleListDevices)
	deviceGroup.GET("/:name", h.HandleGetDevice)
	deviceGroup.POST("/:name/open", h.HandleOpenDevice)
	deviceGroup.POST("/:name/close", h.HandleCloseDevice)
	deviceGroup.POST("/:name/transmit", h.HandleTransmit)
	deviceGroup.POST("/:name/simulate/weight", h.HandleSimulateWeight)
	deviceGroup.POST("/:name/simulate/barcode", h.HandleSimulateBarcode)

	e.GET("/api/events", events.HandleEvents)
}

// RequestLogger logs each request at a level picked from its status.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := logger.Debug()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			event.
				Str("method", c.Request().Method).
				Str("path", path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("client_ip", c.RealIP()).
				Msg("http_request")
			return nil
		}
	}
}

func NewEcho(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(RequestLogger(deps.Logger))

	RegisterRoutes(e, NewHandler(deps.Center, deps.Version), NewEventStream(deps.Center, deps.Logger, deps.AllowedOrigins), deps.Metrics)
	return e
}

// Server runs the API until Shutdown.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
}

func NewServer(deps Dependencies) *Server {
	return &Server{echo: NewEcho(deps), logger: deps.Logger}
}

func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
