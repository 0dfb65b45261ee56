// Package server hosts the two HTTP(S) listeners the adaptor framework
// exposes: the docs port (document retrieval, authn, batch authz) and the
// dashboard port (status monitor, admin login). Both are built the same
// way: an Echo instance with standard middleware, optional TLS, and
// graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/docuhub/gsadapt/common"
)

// Config configures one Echo listener.
type Config struct {
	Port            int
	Debug           bool
	Secure          bool
	CertFile        string
	KeyFile         string
	ClientCAFile    string // optional: requests (but does not require) a client cert
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests/sec per client IP; 0 disables
}

// DefaultConfig returns sensible listener defaults.
func DefaultConfig(port int) Config {
	return Config{
		Port:            port,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// New builds an Echo instance with the framework's standard middleware
// stack: structured request logging, panic recovery, optional rate
// limiting, and the shared error handler.
func New(name string, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug

	logger := common.ServiceLogger(name)
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)

			ctx := common.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			common.RequestLogger(name, c.Request().Method, c.Request().RequestURI, reqID).
				WithContext(ctx).
				WithFields(map[string]any{
					"status":  c.Response().Status,
					"latency": time.Since(start).String(),
				}).Info("request")
			return err
		}
	})
	e.Use(middleware.Recover())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}
	e.HTTPErrorHandler = CustomHTTPErrorHandler(logger)
	return e
}

// ErrorResponse is the JSON body for a non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CustomHTTPErrorHandler never writes to an already-committed response; a
// post-commit failure is logged and left for the transport to close.
func CustomHTTPErrorHandler(logger *common.ContextLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code := 500
		message := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if c.Response().Committed {
			logger.WithError(err).Warn("error after response committed, dropping")
			return
		}

		var writeErr error
		if c.Request().Method == "HEAD" {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, ErrorResponse{Error: message})
		}
		if writeErr != nil {
			logger.WithError(writeErr).Error("failed writing error response")
		}
	}
}

// TLSConfig builds a *tls.Config from cfg, optionally requesting (but not
// requiring) a client certificate for indexer whitelisting via authn.
func TLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("server: loading TLS cert: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.ClientCAFile != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("server: reading client CA: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("server: no certs parsed from %s", cfg.ClientCAFile)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tlsCfg, nil
}

// GracefulShutdown shuts e down within timeout.
func GracefulShutdown(ctx context.Context, e *echo.Echo, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
