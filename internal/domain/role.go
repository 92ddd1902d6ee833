package domain

// Roles carried in the admin JWT.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
