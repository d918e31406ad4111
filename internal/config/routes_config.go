package config

const (
	DefaultTenantLoginRoute   = "/login"
	DefaultPlatformLoginRoute = "/platform/login"
)

type Routes struct{}

var _ RouteConfig = Routes{}

func (Routes) GetTenantLoginRoute() string {
	return GetEnv("TENANT_LOGIN_ROUTE", DefaultTenantLoginRoute)
}

func (Routes) GetPlatformLoginRoute() string {
	return GetEnv("PLATFORM_LOGIN_ROUTE", DefaultPlatformLoginRoute)
}
