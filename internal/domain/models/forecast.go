package models

// ForecastPoint is one predicted day: point estimate plus band.
type ForecastPoint struct {
	Date      string `json:"date"`
	Predicted int    `json:"predicted"`
	Lower     int    `json:"lower"`
	Upper     int    `json:"upper"`
}

// ForecastResult is a horizon-length prediction for one app, anchored
// to the last known observation date.
type ForecastResult struct {
	AppID         string          `json:"app_id"`
	Country       string          `json:"country"`
	Device        string          `json:"device"`
	Chart         ChartType       `json:"chart"`
	LastKnownDate string          `json:"last_known_date"`
	Points        []ForecastPoint `json:"points"`
}

// PredictedTopNEntry is one re-ranked candidate in a predicted chart.
// Change is baseline current rank minus predicted rank; positive means
// the app is predicted to climb.
type PredictedTopNEntry struct {
	Position      int    `json:"position"`
	AppID         string `json:"app_id"`
	AppName       string `json:"app_name"`
	CurrentRank   int    `json:"current_rank"`
	PredictedRank int    `json:"predicted_rank"`
	Change        int    `json:"change"`
}

// PredictedTopN is a model-driven future chart for one
// (country, device, chart) dimension set.
type PredictedTopN struct {
	Country  string               `json:"country"`
	Device   string               `json:"device"`
	Chart    ChartType            `json:"chart"`
	Horizon  int                  `json:"horizon"`
	BaseDate string               `json:"base_date"`
	Entries  []PredictedTopNEntry `json:"entries"`
}
