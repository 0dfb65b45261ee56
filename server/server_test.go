package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/docuhub/gsadapt/common"
)

func TestNewAppliesErrorHandler(t *testing.T) {
	e := New("test", DefaultConfig(0))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "teapot")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "teapot")
}

func TestErrorHandlerSkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	logger := common.ServiceLogger("test")
	e.HTTPErrorHandler = CustomHTTPErrorHandler(logger)

	e.GET("/partial", func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		_, _ = c.Response().Write([]byte("partial"))
		return errors.New("boom after commit")
	})

	req := httptest.NewRequest(http.MethodGet, "/partial", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", rec.Body.String())
}
