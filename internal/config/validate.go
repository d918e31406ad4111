package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type settings struct {
	IdentityBaseURL    string        `validate:"required,url"`
	HTTPTimeout        time.Duration `validate:"gt=0"`
	RenewalRatio       float64       `validate:"gt=0,lt=1"`
	RenewalMargin      time.Duration `validate:"gte=0"`
	TenantLoginRoute   string        `validate:"required,startswith=/"`
	PlatformLoginRoute string        `validate:"required,startswith=/"`
}

var validate = validator.New()

// Validate checks the settings the session core depends on.
func Validate(c Config) error {
	s := settings{
		IdentityBaseURL:    c.GetIdentityBaseURL(),
		HTTPTimeout:        c.GetHTTPTimeout(),
		RenewalRatio:       c.GetRenewalRatio(),
		RenewalMargin:      c.GetRenewalMargin(),
		TenantLoginRoute:   c.GetTenantLoginRoute(),
		PlatformLoginRoute: c.GetPlatformLoginRoute(),
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
