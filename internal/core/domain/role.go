package domain

import "strings"

// Role is one of the fixed portal roles.
type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleHospitalAdmin Role = "hospital_admin"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleReceptionist  Role = "receptionist"
	RolePatient       Role = "patient"
)

// DefaultRole is assigned at registration when none is requested.
const DefaultRole = RolePatient

// roleLevels maps each role to its privilege level. Higher outranks lower.
var roleLevels = map[Role]int{
	RoleSuperAdmin:    100,
	RoleHospitalAdmin: 80,
	RoleDoctor:        60,
	RoleNurse:         50,
	RoleReceptionist:  30,
	RolePatient:       10,
}

// ParseRole normalises s and returns the matching role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r is part of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the privilege level of r, or 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether r ranks at or above min.
// Unknown roles never satisfy the check.
func (r Role) AtLeast(min Role) bool {
	if !r.Valid() || !min.Valid() {
		return false
	}
	return r.Level() >= min.Level()
}

// Roles returns every known role, highest level first.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleHospitalAdmin,
		RoleDoctor,
		RoleNurse,
		RoleReceptionist,
		RolePatient,
	}
}
