package api

import (
	"errors"
	"net/http"

	models "RankPulse/internal/domain/models"
	domrepo "RankPulse/internal/domain/repository"
	"RankPulse/internal/usecase"
	xhttp "RankPulse/pkg/http"
	xlogger "RankPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyticsEchoHandler exposes the windowed analytics over Echo.
type AnalyticsEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.AnalyticsUseCase
}

func NewAnalyticsEchoHandler(logger *xlogger.Logger, uc *usecase.AnalyticsUseCase) *AnalyticsEchoHandler {
	return &AnalyticsEchoHandler{logger: logger, uc: uc}
}

func (h *AnalyticsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analytics")
	g.GET("/overview", h.Overview)
	g.GET("/top", h.TopN)
	g.GET("/volatility", h.Volatility)
	g.GET("/stability", h.Stability)
	g.GET("/genres/trend", h.GenreTrend)
	g.GET("/genres/growth", h.GenreGrowth)
	g.GET("/importance", h.Importance)

	e.GET("/api/meta/options", h.Meta)
	e.GET("/api/apps/search", h.SearchApps)
	e.GET("/api/apps/:app_id/history", h.AppHistory)
}

// domainErrorResponse maps domain sentinels onto HTTP statuses. The
// analytics paths rarely hit it since data absence is not an error.
func domainErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidParameter), errors.Is(err, models.ErrInvalidModelName):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, models.ErrModelNotFound), errors.Is(err, models.ErrNoData):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()).WithError(err))
	case errors.Is(err, models.ErrInsufficientHistory):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INSUFFICIENT_HISTORY", "", err.Error(), http.StatusUnprocessableEntity).WithError(err))
	case errors.Is(err, models.ErrUploadTooLarge):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UPLOAD_TOO_LARGE", "", err.Error(), http.StatusRequestEntityTooLarge).WithError(err))
	case errors.Is(err, models.ErrUnsupportedExtension):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UNSUPPORTED_EXTENSION", "", err.Error(), http.StatusUnsupportedMediaType).WithError(err))
	}
	return xhttp.InternalServerErrorResponse(c)
}

func dimensionSpec(country, device, chart string) domrepo.QuerySpec {
	return domrepo.QuerySpec{
		Country: country,
		Device:  device,
		Chart:   models.ChartType(chart),
	}
}

func (h *AnalyticsEchoHandler) Overview(c echo.Context) error {
	req := &models.OverviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Overview(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.Days)
	if err != nil {
		h.logger.Error("overview usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) TopN(c echo.Context) error {
	req := &models.TopNRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.TopN(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.N)
	if err != nil {
		h.logger.Error("top_n usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) Volatility(c echo.Context) error {
	req := &models.VolatilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.VolatilityTrend(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.Days)
	if err != nil {
		h.logger.Error("volatility usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) Stability(c echo.Context) error {
	req := &models.StabilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Stability(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart),
		req.Days, req.K, req.MinPresence, req.Volatile)
	if err != nil {
		h.logger.Error("stability usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) GenreTrend(c echo.Context) error {
	req := &models.GenreTrendRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.GenreTrend(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.Days, req.Genre)
	if err != nil {
		h.logger.Error("genre_trend usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) GenreGrowth(c echo.Context) error {
	req := &models.GenreGrowthRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.GenreGrowth(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.Days)
	if err != nil {
		h.logger.Error("genre_growth usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) Importance(c echo.Context) error {
	req := &models.ImportanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.FeatureImportance(c.Request().Context(), dimensionSpec(req.Country, req.Device, req.Chart), req.Days)
	if err != nil {
		h.logger.Error("importance usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) Meta(c echo.Context) error {
	res, err := h.uc.Meta(c.Request().Context())
	if err != nil {
		h.logger.Error("meta usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) SearchApps(c echo.Context) error {
	req := &models.AppSearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.SearchApps(c.Request().Context(), req.Q, dimensionSpec(req.Country, req.Device, req.Chart), req.Limit)
	if err != nil {
		h.logger.Error("app search usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsEchoHandler) AppHistory(c echo.Context) error {
	req := &models.AppHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	spec := dimensionSpec(req.Country, req.Device, req.Chart).WithApp(req.AppID)
	res, err := h.uc.AppHistory(c.Request().Context(), spec, req.Window, req.From, req.To)
	if err != nil {
		h.logger.Error("app history usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}
