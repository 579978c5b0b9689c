package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danthegoodman1/icescan/datastore"
	"github.com/danthegoodman1/icescan/gologger"
	"github.com/danthegoodman1/icescan/metastore"
	"github.com/danthegoodman1/icescan/metrics"
	"github.com/danthegoodman1/icescan/utils"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var logger = gologger.NewComponentLogger("http_server")

type (
	HTTPServer struct {
		Echo *echo.Echo

		MetaStore metastore.MetaStore
		Registry  *datastore.Registry
		Scan      ScanDefaults
	}

	// ScanDefaults apply to plan and scan requests that leave them unset.
	ScanDefaults struct {
		BatchSize              int
		TargetPartitions       int
		RepartitionFileMinSize int64
		PoolSize               int
	}

	CustomValidator struct {
		validator *validator.Validate
	}
)

func NewHTTPServer(ms metastore.MetaStore, registry *datastore.Registry, defaults ScanDefaults) *HTTPServer {
	s := &HTTPServer{
		Echo:      echo.New(),
		MetaStore: ms,
		Registry:  registry,
		Scan:      defaults,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &utils.NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)
	s.Echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	tables := s.Echo.Group("/tables")
	tables.POST("", ccHandler(s.CreateTable))
	tables.GET("/:table", ccHandler(s.GetTable))
	tables.GET("/:table/files", ccHandler(s.ListFiles))
	tables.POST("/:table/files", ccHandler(s.RegisterFiles))
	tables.POST("/:table/insert", ccHandler(s.InsertHandler))
	tables.POST("/:table/plan", ccHandler(s.PlanHandler))
	tables.POST("/:table/scan", ccHandler(s.ScanHandler))
	return s
}

// Start serves h2c on port in the background.
func (s *HTTPServer) Start(port string) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		return fmt.Errorf("error creating tcp listener: %w", err)
	}
	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start h2c server, exiting")
		}
	}()
	return nil
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	return err
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			// default handler
			c.Error(err)
		}
		stop := time.Since(start)
		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		cl := req.Header.Get(echo.HeaderContentLength)
		if cl == "" {
			cl = "0"
		}
		logger.Debug().Str("method", req.Method).Str("remote_ip", c.RealIP()).Str("req_uri", req.RequestURI).Str("handler_path", c.Path()).Str("path", p).Int("status", res.Status).Int64("latency_ns", int64(stop)).Str("protocol", req.Proto).Str("bytes_in", cl).Int64("bytes_out", res.Size).Msg("req received")
		return nil
	}
}
