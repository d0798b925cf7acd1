package models

// Query-bound request shapes for the API layer. Defaults are applied
// before validation.

// DimensionRequest is the shared (country, device, chart) selector.
type DimensionRequest struct {
	Country string `query:"country" validate:"required"`
	Device  string `query:"device" validate:"required,oneof=iphone ipad android"`
	Chart   string `query:"chart" validate:"required,oneof=free paid grossing"`
}

// OverviewRequest selects the overview KPI window.
type OverviewRequest struct {
	DimensionRequest
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

// TopNRequest selects the latest-day standing.
type TopNRequest struct {
	DimensionRequest
	N int `query:"n" default:"20" validate:"gte=1,lte=500"`
}

// VolatilityRequest selects the per-day dispersion series.
type VolatilityRequest struct {
	DimensionRequest
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

// StabilityRequest selects the stable or volatile top-K.
type StabilityRequest struct {
	DimensionRequest
	Days        int  `query:"days" default:"30" validate:"gte=1,lte=365"`
	K           int  `query:"k" default:"10" validate:"gte=1,lte=100"`
	MinPresence int  `query:"min_presence" validate:"gte=0"`
	Volatile    bool `query:"volatile"`
}

// GenreTrendRequest selects one genre's daily activity series.
type GenreTrendRequest struct {
	DimensionRequest
	Days  int    `query:"days" default:"30" validate:"gte=1,lte=365"`
	Genre string `query:"genre"`
}

// GenreGrowthRequest selects the window-over-window genre comparison.
type GenreGrowthRequest struct {
	DimensionRequest
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

// ImportanceRequest selects the feature attribution window.
type ImportanceRequest struct {
	DimensionRequest
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

// AppSearchRequest matches apps by exact id or name substring.
type AppSearchRequest struct {
	Q       string `query:"q" validate:"required"`
	Country string `query:"country"`
	Device  string `query:"device" validate:"omitempty,oneof=iphone ipad android"`
	Chart   string `query:"chart" validate:"omitempty,oneof=free paid grossing"`
	Limit   int    `query:"limit" default:"20" validate:"gte=1,lte=100"`
}

// AppHistoryRequest selects one app's rank series. Window and the
// explicit [from, to] range are mutually exclusive; the usecase
// enforces that rule.
type AppHistoryRequest struct {
	AppID   string `param:"app_id" validate:"required"`
	Country string `query:"country" validate:"required"`
	Device  string `query:"device" validate:"required,oneof=iphone ipad android"`
	Chart   string `query:"chart" validate:"required,oneof=free paid grossing"`
	Window  int    `query:"window" validate:"gte=0,lte=365"`
	From    string `query:"from"`
	To      string `query:"to"`
}

// TrainModelRequest enqueues one offline training run.
type TrainModelRequest struct {
	Country   string `json:"country" validate:"required"`
	Device    string `json:"device" validate:"required,oneof=iphone ipad android"`
	Chart     string `json:"chart" validate:"required,oneof=free paid grossing"`
	AppID     string `json:"app_id"`
	ExtraDays int    `json:"extra_days" validate:"gte=0,lte=365"`
}

// ForecastAppRequest selects a single-app forecast. Model overrides
// the dimension selector when set.
type ForecastAppRequest struct {
	AppID    string `param:"app_id" validate:"required"`
	Country  string `query:"country"`
	Device   string `query:"device" validate:"omitempty,oneof=iphone ipad android"`
	Chart    string `query:"chart" validate:"omitempty,oneof=free paid grossing"`
	Lookback int    `query:"lookback" validate:"gte=0,lte=365"`
	Horizon  int    `query:"horizon" validate:"gte=0,lte=60"`
	Model    string `query:"model"`
}

// PredictedTopNRequest selects a model-driven future chart.
type PredictedTopNRequest struct {
	Country string `query:"country"`
	Device  string `query:"device" validate:"omitempty,oneof=iphone ipad android"`
	Chart   string `query:"chart" validate:"omitempty,oneof=free paid grossing"`
	N       int    `query:"n" default:"10" validate:"gte=1,lte=100"`
	Model   string `query:"model"`
}
