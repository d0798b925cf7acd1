package api

import (
	"github.com/labstack/echo/v4"
)

// Router registers every API surface on one Echo instance.
type Router struct {
	analytics *AnalyticsEchoHandler
	forecast  *ForecastEchoHandler
}

func NewRouter(analytics *AnalyticsEchoHandler, forecast *ForecastEchoHandler) *Router {
	return &Router{analytics: analytics, forecast: forecast}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	r.analytics.RegisterRoutes(e)
	r.forecast.RegisterRoutes(e)
}
