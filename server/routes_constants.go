package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Browser flows
	RouteIndex        = "/{$}"
	RouteAuthorize    = "/authorize"
	RouteAuthenticate = "/authenticate"

	// API flows
	RouteToken    = "/token"
	RouteRefresh  = "/refresh"
	RouteRevoke   = "/revoke"
	RouteResource = "/resource"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"
)
