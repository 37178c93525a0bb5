package auth

// Well-known role and permission names. The catalog itself is administered
// outside this core; these constants only name the authorities the API
// checks against.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"

	PermUserRead         = "USER_READ"
	PermAuditRead        = "AUDIT_READ"
	PermClientRead       = "CLIENT_READ"
	PermClientWrite      = "CLIENT_WRITE"
	PermTransactionRead  = "TRANSACTION_READ"
	PermTransactionWrite = "TRANSACTION_WRITE"
)
