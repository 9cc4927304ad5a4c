package model

// Identity is established upstream; these headers carry its result.
const (
	ActorIDHeader       = "X-Actor-ID"
	ActorRoleHeader     = "X-Actor-Role"
	AuthzDecisionHeader = "X-Authz-Decision"

	AuthzAllow = "allow"
)

type ActorRole string

const (
	ActorPatient  ActorRole = "patient"
	ActorProvider ActorRole = "provider"
	ActorStaff    ActorRole = "staff"
)

func (r ActorRole) Valid() bool {
	return r == ActorPatient || r == ActorProvider || r == ActorStaff
}

// Actor is the already authenticated caller of an operation. BookingAllowed is
// the identity service's decision (lockouts, rate limits) and is taken as is.
type Actor struct {
	ID             string    `json:"id"`
	Role           ActorRole `json:"role"`
	BookingAllowed bool      `json:"booking_allowed"`
}

func (a Actor) IsPatient(patientID string) bool {
	return a.Role == ActorPatient && a.ID != "" && a.ID == patientID
}

func (a Actor) IsProvider(providerID string) bool {
	return a.Role == ActorProvider && a.ID != "" && a.ID == providerID
}

// CanManage reports whether the actor may operate a provider's calendar.
func (a Actor) CanManage(providerID string) bool {
	return a.IsProvider(providerID) || (a.Role == ActorStaff && a.ID != "")
}
