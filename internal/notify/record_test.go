package notify

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		ok   bool
	}{
		{"valid", Record{ID: "n1", Title: "hi"}, true},
		{"missing id", Record{Title: "hi"}, false},
		{"blank id", Record{ID: "   ", Title: "hi"}, false},
		{"missing title", Record{ID: "n1"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error not ErrMalformed: %v", err)
				}
			}
		})
	}
}

func TestCategoryFrom(t *testing.T) {
	tests := []struct {
		typ, severity string
		want          Category
	}{
		{"", "", CategoryMessage},
		{"message", "", CategoryMessage},
		{"alert", "", CategoryAlert},
		{"success", "", CategorySuccess},
		{"error", "", CategoryError},
		{"message", "critical", CategoryError}, // severity wins
		{"error", "ok", CategorySuccess},
		{"", "WARNING", CategoryAlert},
		{"bogus", "bogus", CategoryMessage},
	}
	for _, tc := range tests {
		if got := CategoryFrom(tc.typ, tc.severity); got != tc.want {
			t.Fatalf("CategoryFrom(%q, %q) = %q, want %q", tc.typ, tc.severity, got, tc.want)
		}
	}
}
