package models

import "time"

// RatePeriod identifies one fixed counting window.
type RatePeriod string

const (
	PeriodMinute RatePeriod = "minute"
	PeriodHour   RatePeriod = "hour"
	PeriodDay    RatePeriod = "day"
)

// Periods lists every window in checking order.
var Periods = []RatePeriod{PeriodMinute, PeriodHour, PeriodDay}

// Duration returns the window length.
func (p RatePeriod) Duration() time.Duration {
	switch p {
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// RateWindow is the counter state of one (identity, period) pair.
type RateWindow struct {
	Identity    string     `json:"identity"`
	Period      RatePeriod `json:"period"`
	Count       int64      `json:"count"`
	Limit       int64      `json:"limit"`
	WindowStart time.Time  `json:"window_start"`
}

// Remaining is the unused quota per window. A negative value means the
// window is unlimited.
type Remaining struct {
	PerMinute int64 `json:"per_minute"`
	PerHour   int64 `json:"per_hour"`
	PerDay    int64 `json:"per_day"`
}

// CooldownLock is a timed deny-all penalty for one identity.
type CooldownLock struct {
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RateStatus is a full snapshot of an identity's limiter state.
type RateStatus struct {
	Identity string        `json:"identity"`
	Windows  []RateWindow  `json:"windows"`
	Cooldown *CooldownLock `json:"cooldown,omitempty"`
}
