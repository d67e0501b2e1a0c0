package auth

import (
	"errors"
	"testing"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Alu-2026!", true},
		{"Menuiserie1!", false},
		{"menuiseriealu", true},
		{"123456789012", true},
		{"MENUISERIE2026", true},
		{"menuiserie-alu", true},
		{"Menuiserie2026", false},
		{"menuiserie-26", false},
		{"ALUMINIUM-PVC", true},
		{"ALUMINIUM-PVC1", false},
		{"نافذة-ألمنيوم-2026", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrWeakPassword) {
				t.Errorf("Expected ErrWeakPassword, got %v", err)
			}
		})
	}
}

func TestReferenceTable(t *testing.T) {
	for _, table := range []string{"clients", "quotes", "invoices", "transporters"} {
		if got, err := ReferenceTable(table); err != nil || got != table {
			t.Errorf("ReferenceTable(%q) = %q, %v", table, got, err)
		}
	}
	for _, table := range []string{"users", "sessions", "clients; DROP TABLE users", ""} {
		if _, err := ReferenceTable(table); !errors.Is(err, ErrUnknownTable) {
			t.Errorf("ReferenceTable(%q) should fail, got %v", table, err)
		}
	}
}
