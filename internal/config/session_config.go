package config

import (
	"strconv"
	"time"
)

const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultRenewalRatio  = 0.8
	DefaultRenewalMargin = time.Minute
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetHTTPTimeout() time.Duration {
	return GetDuration("HTTP_TIMEOUT", DefaultHTTPTimeout)
}

// GetRenewalRatio is the share of a token's remaining lifetime to wait before renewing it.
func (Session) GetRenewalRatio() float64 {
	v, err := strconv.ParseFloat(GetEnv("RENEWAL_RATIO", ""), 64)
	if err != nil || v <= 0 || v >= 1 {
		return DefaultRenewalRatio
	}
	return v
}

// GetRenewalMargin is the minimum time before expiry at which a renewal fires.
func (Session) GetRenewalMargin() time.Duration {
	return GetDuration("RENEWAL_MARGIN", DefaultRenewalMargin)
}
