package types

import "strings"

// Address is the shipping address shape embedded into orders as a snapshot.
// Stored as jsonb; once written into an order it is never updated again.
type Address struct {
	Name       string  `json:"name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate reports whether the address carries the minimum fields required
// for a shipping snapshot.
func (a Address) Validate() bool {
	return strings.TrimSpace(a.Line1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.Country) != ""
}

// Clone deep-copies the address so snapshots never share pointers with the
// source record.
func (a Address) Clone() Address {
	out := a
	if a.Line2 != nil {
		v := *a.Line2
		out.Line2 = &v
	}
	if a.Phone != nil {
		v := *a.Phone
		out.Phone = &v
	}
	return out
}

// BillingProfile is the billing snapshot embedded into orders.
type BillingProfile struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	TaxID   *string `json:"tax_id,omitempty"`
	Address Address `json:"address"`
}

// Clone deep-copies the billing profile.
func (b BillingProfile) Clone() BillingProfile {
	out := b
	if b.TaxID != nil {
		v := *b.TaxID
		out.TaxID = &v
	}
	out.Address = b.Address.Clone()
	return out
}
