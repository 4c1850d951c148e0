package types

import "strings"

// Address identifies an account on the token ledger.
// Addresses are compared after normalization, so "0xABC" and "0xabc" are the
// same account.
type Address string

// ZeroAddress is the canonical empty address.
const ZeroAddress Address = ""

// ParseAddress normalizes s into an Address.
func ParseAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// IsZero reports whether the address is empty or a hex string of zeros
// ("0x0000...").
func (a Address) IsZero() bool {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return true
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return true
	}
	return strings.Trim(s, "0") == ""
}

// Normalize returns the canonical form of the address.
func (a Address) Normalize() Address { return ParseAddress(string(a)) }

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }
