package tenants

// Tenant is an isolated customer organization. Domain is the host the
// tenant's console is served from.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}
