package auth

// Scopes accepted by the reports API.
const (
	ScopeReportsRead  = "reports:read"
	ScopeReportsWrite = "reports:write"
)
