package domain

// Scope is the tenant identity every core operation runs under. It comes from
// the authenticated terminal token; the core itself never widens it.
type Scope struct {
	StoreID        string `json:"store_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	TerminalID     string `json:"terminal_id,omitempty"`
}
