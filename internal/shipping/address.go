package shipping

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/asaskevich/govalidator"

	dErrors "wishwell/pkg/domain-errors"
)

// Address is a validated shipping destination. Immutable once attached to a
// shipment group; persisted only as part of an order record.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty"`
}

// Validate checks the address has the fields an order platform requires.
func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return dErrors.New(dErrors.CodeValidation, "address name is required")
	case strings.TrimSpace(a.Line1) == "":
		return dErrors.New(dErrors.CodeValidation, "address line1 is required")
	case strings.TrimSpace(a.City) == "":
		return dErrors.New(dErrors.CodeValidation, "address city is required")
	case strings.TrimSpace(a.PostalCode) == "":
		return dErrors.New(dErrors.CodeValidation, "address postal code is required")
	case strings.TrimSpace(a.Country) == "":
		return dErrors.New(dErrors.CodeValidation, "address country is required")
	}
	if a.Email != "" && !govalidator.IsEmail(a.Email) {
		return dErrors.New(dErrors.CodeValidation, "address email is invalid")
	}
	return nil
}

// Key returns the address identity used for grouping: a hash over the
// normalized name, lines, postal code and country. Two differently-spelled
// copies of the same address land in the same shipment group.
func (a Address) Key() string {
	h := sha256.New()
	for _, field := range []string{a.Name, a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country} {
		h.Write([]byte(normalize(field)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// normalize lowercases and collapses interior whitespace so formatting
// differences do not split groups.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
