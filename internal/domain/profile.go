package domain

import "time"

// Role is the mode a user acts in.
type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDriver || r == RoleRider
}

// Gender of a user, used for femaleOnly gating.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Vehicle describes a driver's car.
type Vehicle struct {
	Model        string
	LicensePlate string
}

// Profile represents a user of the marketplace.
//
// TrustScore and WalletBalance are caches derived from ratings and the ledger.
// They are refreshed by the services that own those sources and are never
// written from client input.
type Profile struct {
	ID            string
	Name          string
	Email         string
	Gender        Gender
	Role          Role
	TrustScore    float64
	WalletBalance int64
	Vehicle       *Vehicle
	CreatedAt     time.Time
}
