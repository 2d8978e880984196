package models

// AuthorizationMode defines how the system behaves when no explicit permission is defined for an endpoint
type AuthorizationMode string

const (
	// AuthorizationModeFailClosed - Deny all access to undefined endpoints (most secure)
	AuthorizationModeFailClosed AuthorizationMode = "fail_closed"

	// AuthorizationModeFailOpenAdminSystem - Allow admin and system users, deny others
	AuthorizationModeFailOpenAdminSystem AuthorizationMode = "fail_open_admin_system"

	// AuthorizationModeFailOpenAdmin - Allow only admin users, deny others
	AuthorizationModeFailOpenAdmin AuthorizationMode = "fail_open_admin"
)

// ParseAuthorizationMode converts a configuration string into an AuthorizationMode
func ParseAuthorizationMode(mode string) (AuthorizationMode, bool) {
	switch AuthorizationMode(mode) {
	case AuthorizationModeFailClosed, AuthorizationModeFailOpenAdmin, AuthorizationModeFailOpenAdminSystem:
		return AuthorizationMode(mode), true
	}
	return "", false
}

// Role represents user roles in the system
type Role string

const (
	RoleAdmin      Role = "ChitFund_Admin"      // Regulator side, full access
	RoleForeman    Role = "ChitFund_Foreman"    // Operates schemes they registered
	RoleSubscriber Role = "ChitFund_Subscriber" // Member of one or more schemes
	RoleSystem     Role = "ChitFund_System"     // Internal services
)

// Permission represents specific permissions
type Permission string

const (
	// Access request permissions
	PermissionReadAccessRequest   Permission = "access_request:read"
	PermissionReviewAccessRequest Permission = "access_request:review"

	// User permissions
	PermissionReadUser     Permission = "user:read"
	PermissionReadAllUsers Permission = "user:read:all"

	// Scheme permissions
	PermissionCreateScheme   Permission = "scheme:create"
	PermissionReadScheme     Permission = "scheme:read"
	PermissionUpdateScheme   Permission = "scheme:update"
	PermissionSubmitScheme   Permission = "scheme:submit"
	PermissionCommenceScheme Permission = "scheme:commence"
	PermissionReadAllSchemes Permission = "scheme:read:all"

	// Workflow permissions
	PermissionReadWorkflow Permission = "workflow:read"
	PermissionActWorkflow  Permission = "workflow:act"

	// Enrollment permissions
	PermissionCreateEnrollment Permission = "enrollment:create"
	PermissionReadEnrollment   Permission = "enrollment:read"

	// Document permissions
	PermissionUploadDocument Permission = "document:create"
	PermissionReadDocument   Permission = "document:read"
	PermissionReviewDocument Permission = "document:review"

	// Certificate permissions
	PermissionReadCertificate Permission = "certificate:read"

	// Monthly report permissions
	PermissionSubmitReport Permission = "report:create"
	PermissionReadReport   Permission = "report:read"
	PermissionReviewReport Permission = "report:review"

	// Chit score and audit
	PermissionReadChitScore Permission = "score:read"
	PermissionReadAuditLog  Permission = "audit:read"
)

// RolePermissions defines what permissions each role has
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionReadAccessRequest, PermissionReviewAccessRequest,
		PermissionReadUser, PermissionReadAllUsers,
		PermissionReadScheme, PermissionReadAllSchemes,
		PermissionReadWorkflow, PermissionActWorkflow,
		PermissionReadEnrollment,
		PermissionReadDocument, PermissionReviewDocument,
		PermissionReadCertificate,
		PermissionReadReport, PermissionReviewReport,
		PermissionReadChitScore, PermissionReadAuditLog,
	},
	RoleForeman: {
		// Foremen run their own schemes end to end, but never review them
		PermissionReadUser,
		PermissionCreateScheme, PermissionReadScheme, PermissionUpdateScheme,
		PermissionSubmitScheme, PermissionCommenceScheme,
		PermissionReadWorkflow,
		PermissionCreateEnrollment, PermissionReadEnrollment,
		PermissionUploadDocument, PermissionReadDocument,
		PermissionReadCertificate,
		PermissionSubmitReport, PermissionReadReport,
		PermissionReadChitScore,
	},
	RoleSubscriber: {
		PermissionReadUser,
		PermissionReadScheme,
		PermissionReadCertificate,
		PermissionReadChitScore,
	},
	RoleSystem: {
		PermissionReadAccessRequest,
		PermissionReadUser, PermissionReadAllUsers,
		PermissionReadScheme, PermissionReadAllSchemes,
		PermissionReadWorkflow, PermissionReadEnrollment,
		PermissionReadDocument, PermissionReadCertificate,
		PermissionReadReport, PermissionReadChitScore,
	},
}

// EndpointPermission defines the required permission for each endpoint
type EndpointPermission struct {
	Method              string
	Path                string
	Permission          Permission
	IsOwnershipRequired bool // Whether the user must own the resource
}

// EndpointPermissions maps HTTP endpoints to required permissions.
// Exact paths are matched first, then wildcard patterns in declaration order,
// so the more specific wildcard patterns are listed before the broad ones.
var EndpointPermissions = []EndpointPermission{
	// Access requests
	{"GET", "/api/v1/access-requests", PermissionReadAccessRequest, false},
	{"PUT", "/api/v1/access-requests/*/review", PermissionReviewAccessRequest, false},
	{"GET", "/api/v1/access-requests/*", PermissionReadAccessRequest, false},

	// Users
	{"GET", "/api/v1/users/me", PermissionReadUser, false},
	{"GET", "/api/v1/users", PermissionReadAllUsers, false},
	{"GET", "/api/v1/users/*", PermissionReadAllUsers, false},

	// Schemes and nested resources
	{"GET", "/api/v1/schemes", PermissionReadScheme, false},
	{"POST", "/api/v1/schemes", PermissionCreateScheme, false},
	{"POST", "/api/v1/schemes/*/submit", PermissionSubmitScheme, true},
	{"POST", "/api/v1/schemes/*/commence", PermissionCommenceScheme, true},
	{"POST", "/api/v1/schemes/*/workflow/actions", PermissionActWorkflow, false},
	{"GET", "/api/v1/schemes/*/workflow", PermissionReadWorkflow, true},
	{"POST", "/api/v1/schemes/*/enrollments", PermissionCreateEnrollment, true},
	{"GET", "/api/v1/schemes/*/enrollments", PermissionReadEnrollment, true},
	{"POST", "/api/v1/schemes/*/documents", PermissionUploadDocument, true},
	{"GET", "/api/v1/schemes/*/documents*", PermissionReadDocument, true},
	{"GET", "/api/v1/schemes/*/certificates", PermissionReadCertificate, true},
	{"POST", "/api/v1/schemes/*/reports", PermissionSubmitReport, true},
	{"GET", "/api/v1/schemes/*/reports", PermissionReadReport, true},
	{"GET", "/api/v1/schemes/*", PermissionReadScheme, true},
	{"PUT", "/api/v1/schemes/*", PermissionUpdateScheme, true},

	// Documents
	{"PUT", "/api/v1/documents/*/review", PermissionReviewDocument, false},
	{"GET", "/api/v1/documents/*/content", PermissionReadDocument, true},
	{"GET", "/api/v1/documents/*", PermissionReadDocument, true},

	// Certificates
	{"GET", "/api/v1/certificates/*/verify", PermissionReadCertificate, true},
	{"GET", "/api/v1/certificates/*", PermissionReadCertificate, true},

	// Reports
	{"PUT", "/api/v1/reports/*/review", PermissionReviewReport, false},
	{"GET", "/api/v1/reports/*", PermissionReadReport, true},

	// Chit score and audit
	{"GET", "/api/v1/chit-score/*", PermissionReadChitScore, true},
	{"GET", "/api/v1/audit-logs", PermissionReadAuditLog, false},
}

// HasPermission checks if a role has a specific permission
func (r Role) HasPermission(permission Permission) bool {
	permissions, exists := RolePermissions[r]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	_, exists := RolePermissions[r]
	return exists
}

// ActorType maps the role onto the actor type used in audit events
func (r Role) ActorType() ActorType {
	switch r {
	case RoleAdmin:
		return ActorTypeAdmin
	case RoleForeman:
		return ActorTypeForeman
	case RoleSystem:
		return ActorTypeSystem
	default:
		return ActorTypeSubscriber
	}
}

// RequestableRole converts the role name used on the public access request
// form into a Role. Only foreman and subscriber accounts can be requested.
func RequestableRole(name string) (Role, bool) {
	switch name {
	case "foreman", string(RoleForeman):
		return RoleForeman, true
	case "subscriber", string(RoleSubscriber):
		return RoleSubscriber, true
	}
	return "", false
}

// PublicEndpoints are reachable without a session
var PublicEndpoints = []EndpointPermission{
	{Method: "POST", Path: "/api/v1/auth/login"},
	{Method: "POST", Path: "/api/v1/auth/logout"},
	{Method: "POST", Path: "/api/v1/auth/activate"},
	{Method: "POST", Path: "/api/v1/access-requests"},
	{Method: "POST", Path: "/api/v1/access-requests/*/assessment"},
	{Method: "GET", Path: "/api/v1/assessment/questions"},
	{Method: "GET", Path: "/api/v1/status-badges"},
	{Method: "OPTIONS", Path: "/api/v1/*"},
}
