// Package id defines TypeID-based identity types for all custody entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type, in the format "prefix_suffix". Random IDs are K-sortable
// (UUIDv7-based). Vesting schedule IDs are name-based instead: the same
// custody account, beneficiary and sequence always yield the same ID.
package id

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all custody entity types.
const (
	PrefixSchedule Prefix = "vest"  // Vesting schedule
	PrefixPosition Prefix = "stk"   // Staking position
	PrefixCategory Prefix = "cat"   // Distribution category
	PrefixPayout   Prefix = "pay"   // Distribution payout record
	PrefixBatch    Prefix = "batch" // Distribution batch
)

// scheduleNamespace scopes name-based schedule UUIDs.
var scheduleNamespace = uuid.MustParse("6f1c2a52-3d0e-4b8e-9a57-4c1f0f3e9b21")

// crockford is the base32 alphabet used by TypeID suffixes.
const crockford = "0123456789abcdefghjkmnpqrstvwxyz"

// ID is the primary identifier type for all custody entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// NewDeterministic derives an ID from name. The suffix is a SHA-1 name-based
// UUID (RFC 4122 version 5) under the package namespace, so equal names give
// equal IDs across processes and restarts.
func NewDeterministic(prefix Prefix, name string) ID {
	u := uuid.NewSHA1(scheduleNamespace, []byte(name))

	tid, err := typeid.Parse(string(prefix) + "_" + encodeSuffix(u))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// encodeSuffix renders the 128 UUID bits as 26 base32 characters, most
// significant first, the way TypeID encodes suffixes.
func encodeSuffix(u uuid.UUID) string {
	hi := binary.BigEndian.Uint64(u[:8])
	lo := binary.BigEndian.Uint64(u[8:])

	out := make([]byte, 26)
	for i := range out {
		shift := uint(5 * (25 - i))
		var v uint64
		switch {
		case shift >= 64:
			v = hi >> (shift - 64)
		case shift == 0:
			v = lo
		default:
			v = lo>>shift | hi<<(64-shift)
		}
		out[i] = crockford[v&31]
	}

	return string(out)
}

// Parse parses a TypeID string (e.g., "stk_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// ScheduleID is a type-safe identifier for vesting schedules (prefix: "vest").
type ScheduleID = ID

// PositionID is a type-safe identifier for staking positions (prefix: "stk").
type PositionID = ID

// CategoryID is a type-safe identifier for distribution categories (prefix: "cat").
type CategoryID = ID

// PayoutID is a type-safe identifier for payout records (prefix: "pay").
type PayoutID = ID

// BatchID is a type-safe identifier for distribution batches (prefix: "batch").
type BatchID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewScheduleID derives the schedule ID for the sequence-th schedule of
// beneficiary under the given custody account.
func NewScheduleID(custodyAccount, beneficiary string, sequence uint64) ID {
	name := custodyAccount + "|" + beneficiary + "|" + strconv.FormatUint(sequence, 10)
	return NewDeterministic(PrefixSchedule, name)
}

// NewPositionID generates a new unique staking position ID.
func NewPositionID() ID { return New(PrefixPosition) }

// NewCategoryID generates a new unique category ID.
func NewCategoryID() ID { return New(PrefixCategory) }

// NewPayoutID generates a new unique payout ID.
func NewPayoutID() ID { return New(PrefixPayout) }

// NewBatchID generates a new unique batch ID.
func NewBatchID() ID { return New(PrefixBatch) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseScheduleID parses a string and validates the "vest" prefix.
func ParseScheduleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSchedule) }

// ParsePositionID parses a string and validates the "stk" prefix.
func ParsePositionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPosition) }

// ParseCategoryID parses a string and validates the "cat" prefix.
func ParseCategoryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCategory) }

// ParsePayoutID parses a string and validates the "pay" prefix.
func ParsePayoutID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPayout) }

// ParseBatchID parses a string and validates the "batch" prefix.
func ParseBatchID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBatch) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
