package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"approve", "pending", true},
		{"approve", "approved", false},
		{"approve", "rejected", false},
		{"reject", "pending", true},
		{"reject", "approved", false},
		{"reject", "rejected", false},
		{"unknown", "pending", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestCanDecide(t *testing.T) {
	cases := []struct {
		role  string
		valid bool
	}{
		{"Standortleiter", true},
		{"Bereichsleiter", true},
		{"Admin", true},
		{"Mitarbeiter", false},
		{"", false},
	}

	for _, tt := range cases {
		if got := CanDecide(tt.role); got != tt.valid {
			t.Fatalf("CanDecide(%q)=%v, want %v", tt.role, got, tt.valid)
		}
	}
}

func TestNextOnboardingStatus(t *testing.T) {
	if got := NextOnboardingStatus("pending_location"); got != "pending_masterdata" {
		t.Fatalf("expected pending_masterdata, got %q", got)
	}
	if got := NextOnboardingStatus("pending_masterdata"); got != "complete" {
		t.Fatalf("expected complete, got %q", got)
	}
	if got := NextOnboardingStatus("complete"); got != "" {
		t.Fatalf("expected terminal state, got %q", got)
	}
}
