package metric

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startedAt = time.Now()

// NewServer поднимает отдельный сервер наблюдаемости relay: prometheus
// метрики на /metrics и readiness на /health. Живет на своем порту, чтобы
// не светить метрики наружу вместе с API.
func NewServer() *echo.Echo {
	e := echo.New()

	e.HideBanner = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicechat-relay",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
		})
	})

	return e
}
