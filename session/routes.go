package session

// Authentication endpoints of the meetings backend.
const (
	RouteRegister       = "/api/auth/register/"
	RouteLogin          = "/api/auth/login/"
	RouteLogout         = "/api/auth/logout/"
	RouteMe             = "/api/auth/me/"
	RouteTokenRefresh   = "/api/auth/token/refresh/"
	RouteChangePassword = "/api/auth/change-password/"
)
