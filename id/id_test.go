package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/custody/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"PositionID", id.NewPositionID, "stk_"},
		{"CategoryID", id.NewCategoryID, "cat_"},
		{"PayoutID", id.NewPayoutID, "pay_"},
		{"BatchID", id.NewBatchID, "batch_"},
		{"ScheduleID", func() id.ID { return id.NewScheduleID("vault", "alice", 0) }, "vest_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestScheduleIDDeterministic(t *testing.T) {
	a := id.NewScheduleID("vault", "alice", 3)
	b := id.NewScheduleID("vault", "alice", 3)
	if a.String() != b.String() {
		t.Errorf("same inputs produced different IDs: %q != %q", a, b)
	}

	distinct := []id.ID{
		id.NewScheduleID("vault", "alice", 4),
		id.NewScheduleID("vault", "bob", 3),
		id.NewScheduleID("other", "alice", 3),
	}
	for _, d := range distinct {
		if d.String() == a.String() {
			t.Errorf("expected distinct ID, got %q twice", a)
		}
	}
}

func TestScheduleIDParses(t *testing.T) {
	original := id.NewScheduleID("vault", "alice", 0)
	parsed, err := id.ParseScheduleID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"PositionID", id.NewPositionID, id.ParsePositionID},
		{"CategoryID", id.NewCategoryID, id.ParseCategoryID},
		{"PayoutID", id.NewPayoutID, id.ParsePayoutID},
		{"BatchID", id.NewBatchID, id.ParseBatchID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParsePositionID rejects cat_", id.NewCategoryID().String(), id.ParsePositionID},
		{"ParseCategoryID rejects pay_", id.NewPayoutID().String(), id.ParseCategoryID},
		{"ParsePayoutID rejects stk_", id.NewPositionID().String(), id.ParsePayoutID},
		{"ParseScheduleID rejects batch_", id.NewBatchID().String(), id.ParseScheduleID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewPositionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewCategoryID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewPositionID()
	b := id.NewPositionID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewPositionID() calls returned the same ID: %q", a.String())
	}
}
