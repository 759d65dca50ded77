package domain

import (
	"errors"
	"time"
)

// AuditOutcome classifies the result of an audited action.
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeFailure AuditOutcome = "failure"
	OutcomeError   AuditOutcome = "error"
)

// refusals are the errors a caller can cause. Anything else is a fault of
// the service or its stores.
var refusals = []error{
	ErrInvalidCredentials, ErrMissingCredentials, ErrAccountDeactivated, ErrAccountLocked,
	ErrDuplicateEmail, ErrUserNotFound, ErrInvalidRole, ErrForbidden, ErrInvalidProfile,
	ErrInvalidToken, ErrTokenRevoked, ErrTokenExpired, ErrTokenNotFound,
}

// OutcomeOf classifies err for the audit trail: nil is a success, a refused
// request is a failure and everything else is an error.
func OutcomeOf(err error) AuditOutcome {
	if err == nil {
		return OutcomeSuccess
	}
	for _, r := range refusals {
		if errors.Is(err, r) {
			return OutcomeFailure
		}
	}
	return OutcomeError
}

// Sensitivity classifies the protected health information being accessed.
type Sensitivity string

const (
	SensitivityNormal     Sensitivity = "normal"
	SensitivitySensitive  Sensitivity = "sensitive"
	SensitivityRestricted Sensitivity = "restricted"
)

// Audited action names.
const (
	ActionLogin        = "auth.login"
	ActionLogout       = "auth.logout"
	ActionTokenRefresh = "auth.token.refresh"
	ActionUserCreated  = "user.created"
	ActionUserUpdated  = "user.updated"
	ActionRoleChanged  = "user.role.changed"
	ActionPHIAccess    = "phi.access"
)

// AuditActor identifies who performed an action. It is absent for
// pre-authentication actions such as a failed login for an unknown email.
type AuditActor struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// NetworkContext is where a request came from.
type NetworkContext struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// AuditPayload is the body of every audit envelope.
type AuditPayload struct {
	Actor        *AuditActor    `json:"actor,omitempty"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Outcome      AuditOutcome   `json:"outcome"`
	Network      NetworkContext `json:"network"`
	Before       any            `json:"before,omitempty"`
	After        any            `json:"after,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`

	// PHI access only.
	PatientID     string      `json:"patientId,omitempty"`
	Sensitivity   Sensitivity `json:"sensitivity,omitempty"`
	BreakGlass    bool        `json:"breakGlass,omitempty"`
	Justification string      `json:"justification,omitempty"`
}

// AuditRecord is an audit envelope as stored by the audit trail.
type AuditRecord struct {
	EventID       string
	EventType     string
	CorrelationID string
	Source        string
	OccurredAt    time.Time
	ReceivedAt    time.Time
	Payload       AuditPayload
}

// Actor returns the audit actor for u.
func (u *User) Actor() *AuditActor {
	return &AuditActor{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Actor returns the audit actor for the bearer of c.
func (c AccessClaims) Actor() AuditActor {
	return AuditActor{UserID: c.UserID, Email: c.Email, Role: c.Role}
}
