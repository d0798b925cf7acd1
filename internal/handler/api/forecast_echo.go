package api

import (
	"net/http"

	models "RankPulse/internal/domain/models"
	"RankPulse/internal/service/ratelimit"
	"RankPulse/internal/usecase"
	xhttp "RankPulse/pkg/http"
	xlogger "RankPulse/pkg/logger"
	"RankPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler exposes single-app forecasts, the predicted
// chart and the model registry over Echo. The predicted chart fans
// out up to 3N inferences, so it sits behind a per-client limiter.
type ForecastEchoHandler struct {
	logger     *xlogger.Logger
	uc         *usecase.ForecastUseCase
	rl         *ratelimit.Limiter
	trainQueue queue.QueueService
}

// NewForecastEchoHandler creates the handler. trainQueue may be nil
// when no queue backend is configured; the train endpoint then
// reports unavailable.
func NewForecastEchoHandler(logger *xlogger.Logger, uc *usecase.ForecastUseCase, trainQueue queue.QueueService) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, uc: uc, rl: ratelimit.New(), trainQueue: trainQueue}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/forecast")
	g.GET("/apps/:app_id", h.ForecastApp)
	g.GET("/top", h.PredictedTopN)

	m := e.Group("/api/models")
	m.GET("", h.ListModels)
	m.POST("/train", h.EnqueueTraining)
	m.POST("/:filename", h.UploadModel)
}

func (h *ForecastEchoHandler) ForecastApp(c echo.Context) error {
	req := &models.ForecastAppRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.ForecastApp(c.Request().Context(), usecase.ForecastAppParams{
		AppID:     req.AppID,
		Country:   req.Country,
		Device:    req.Device,
		Chart:     models.ChartType(req.Chart),
		Lookback:  req.Lookback,
		Horizon:   req.Horizon,
		ModelFile: req.Model,
	})
	if err != nil {
		h.logger.Error("forecast app usecase error",
			xlogger.String("app_id", req.AppID),
			xlogger.Error(err),
		)
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) PredictedTopN(c echo.Context) error {
	if !h.rl.Allow(c.RealIP()+":predicted_top", 5, 1) {
		h.logger.Warn("predicted top rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many forecast requests", 429))
	}
	req := &models.PredictedTopNRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.PredictedTopN(c.Request().Context(), usecase.PredictedTopNParams{
		Country:   req.Country,
		Device:    req.Device,
		Chart:     models.ChartType(req.Chart),
		N:         req.N,
		ModelFile: req.Model,
	})
	if err != nil {
		h.logger.Error("predicted top usecase error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) ListModels(c echo.Context) error {
	res, err := h.uc.ListModels(c.Request().Context())
	if err != nil {
		h.logger.Error("model listing error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// EnqueueTraining publishes one training run onto the job queue.
func (h *ForecastEchoHandler) EnqueueTraining(c echo.Context) error {
	if h.trainQueue == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_QUEUE_UNAVAILABLE", "", "training queue not configured", http.StatusServiceUnavailable))
	}
	req := &models.TrainModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	params := usecase.TrainParams{
		Country:   req.Country,
		Device:    req.Device,
		Chart:     models.ChartType(req.Chart),
		AppID:     req.AppID,
		ExtraDays: req.ExtraDays,
	}
	if err := h.trainQueue.PublishMessage(c.Request().Context(), "train_model", params); err != nil {
		h.logger.Error("training enqueue error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "queued"})
}

// UploadModel streams the raw request body into the registry under the
// named artifact.
func (h *ForecastEchoHandler) UploadModel(c echo.Context) error {
	filename := c.Param("filename")
	desc, err := h.uc.UploadModel(c.Request().Context(), filename, c.Request().Body)
	if err != nil {
		h.logger.Error("model upload error",
			xlogger.String("filename", filename),
			xlogger.Error(err),
		)
		return domainErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, desc)
}
