package models

import (
	"fmt"
	"time"
)

// ChartType identifies which ranking list an observation belongs to.
type ChartType string

const (
	ChartFree     ChartType = "free"
	ChartPaid     ChartType = "paid"
	ChartGrossing ChartType = "grossing"
)

// ParseChartType validates a raw chart-type string.
func ParseChartType(s string) (ChartType, error) {
	switch ChartType(s) {
	case ChartFree, ChartPaid, ChartGrossing:
		return ChartType(s), nil
	}
	return "", fmt.Errorf("chart type must be one of free, paid, grossing, got %q", s)
}

// SupportedDevices is the closed set of devices snapshots are collected for.
var SupportedDevices = []string{"iphone", "ipad", "android"}

// IsSupportedDevice reports whether device is in the supported set.
func IsSupportedDevice(device string) bool {
	for _, d := range SupportedDevices {
		if d == device {
			return true
		}
	}
	return false
}

// RankingObservation is one immutable daily chart fact. A given
// (date, country, device, chart, app) key maps to at most one row;
// upsert semantics are owned by the ingestion layer.
type RankingObservation struct {
	ChartDate time.Time `json:"chart_date"`
	Country   string    `json:"country"`
	Device    string    `json:"device"`
	Chart     ChartType `json:"chart"`

	AppID     string `json:"app_id"`
	AppName   string `json:"app_name"`
	Publisher string `json:"publisher,omitempty"`
	Genre     string `json:"genre,omitempty"`

	// Rank is the primary chart rank, Index the secondary rank field.
	// Either may be absent for a given row.
	Rank  *int     `json:"rank,omitempty"`
	Index *int     `json:"index,omitempty"`
	Price *float64 `json:"price,omitempty"`
	IsAd  bool     `json:"is_ad"`
}

// EffectiveRank returns the primary rank when present, otherwise the
// secondary rank. ok is false when neither field is set.
func (o *RankingObservation) EffectiveRank() (int, bool) {
	if o.Rank != nil {
		return *o.Rank, true
	}
	if o.Index != nil {
		return *o.Index, true
	}
	return 0, false
}

// AppRef is a lightweight app identity used by search results.
type AppRef struct {
	AppID     string `json:"app_id"`
	AppName   string `json:"app_name"`
	Publisher string `json:"publisher,omitempty"`
}

// MetaOptions lists the distinct dimension values currently on record.
type MetaOptions struct {
	Countries  []string `json:"countries"`
	Devices    []string `json:"devices"`
	ChartTypes []string `json:"chart_types"`
	MinDate    string   `json:"min_date,omitempty"`
	MaxDate    string   `json:"max_date,omitempty"`
}
