package models

// AccountType is the marketplace side a user signed up for.
type AccountType string

const (
	AccountClient AccountType = "client"
	AccountVendor AccountType = "vendor"
)

// Valid reports whether a is a known account type.
func (a AccountType) Valid() bool {
	return a == AccountClient || a == AccountVendor
}

// User is the authenticated viewer as described by the backend.
type User struct {
	ID              ID          `json:"id"`
	Email           string      `json:"email"`
	FirstName       string      `json:"firstName"`
	LastName        string      `json:"lastName"`
	AccountType     AccountType `json:"accountType"`
	IsVendor        bool        `json:"isVendor"`
	VendorProfileID *ID         `json:"vendorProfileId,omitempty"`
	IsFirstLogin    bool        `json:"isFirstLogin"`
}

// DisplayName returns a human-readable name for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Email
}

// Vendor reports whether the user acts on the vendor side.
func (u *User) Vendor() bool {
	return u != nil && (u.IsVendor || u.AccountType == AccountVendor)
}
