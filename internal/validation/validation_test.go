package validation

import (
	"strings"
	"testing"
)

func TestRequireFieldAndEnum(t *testing.T) {
	ve := &ValidationErrors{}
	RequireField(ve, "name", "   ")
	ValidateEnum(ve, "category", "gold", ValidClientCategories)
	ValidateEnum(ve, "status", "", ValidQuoteStatuses)

	if len(ve.Errors) != 2 {
		t.Fatalf("got %d errors: %v", len(ve.Errors), ve.Error())
	}
	if !strings.Contains(ve.Error(), "category: must be one of: vip, regular, new") {
		t.Errorf("unexpected message: %s", ve.Error())
	}
}

func TestValidateDateOrder(t *testing.T) {
	ve := &ValidationErrors{}
	ValidateDateOrder(ve, "end_date", "2026-03-10", "2026-03-01")
	if !ve.HasErrors() {
		t.Error("expected end before start to fail")
	}
	ve = &ValidationErrors{}
	ValidateDateOrder(ve, "end_date", "2026-03-01", "2026-03-01")
	ValidateDateOrder(ve, "end_date", "", "2026-03-01")
	if ve.HasErrors() {
		t.Errorf("unexpected errors: %s", ve.Error())
	}
}

func TestValidatePhone(t *testing.T) {
	for _, ok := range []string{"0550123456", "0550 12 34 56", "+213 550 12 34 56", ""} {
		ve := &ValidationErrors{}
		ValidatePhone(ve, "phone", ok)
		if ve.HasErrors() {
			t.Errorf("%q rejected: %s", ok, ve.Error())
		}
	}
	for _, bad := range []string{"abc", "12", "0550-abc-12"} {
		ve := &ValidationErrors{}
		ValidatePhone(ve, "phone", bad)
		if !ve.HasErrors() {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	ve := &ValidationErrors{}
	ValidateAmount(ve, "total", -1)
	ValidateAmount(ve, "total", MaxAmount+1)
	ValidateAmount(ve, "total", 28560)
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors: %s", len(ve.Errors), ve.Error())
	}
}

func TestValidateLogoUpload(t *testing.T) {
	tests := []struct {
		name, file, ct string
		size           int64
		wantExt        string
		wantErr        bool
	}{
		{"png", "logo.png", "image/png", 1024, ".png", false},
		{"jpeg normalised", "logo.JPEG", "image/jpeg", 1024, ".jpg", false},
		{"svg", "logo.svg", "image/svg+xml", 1024, ".svg", false},
		{"octet stream", "logo.webp", "application/octet-stream", 1024, ".webp", false},
		{"empty", "logo.png", "image/png", 0, "", true},
		{"too large", "logo.png", "image/png", MaxLogoSize + 1, "", true},
		{"gif", "logo.gif", "image/gif", 1024, "", true},
		{"mismatch", "logo.png", "image/jpeg", 1024, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := &ValidationErrors{}
			ext := ValidateLogoUpload(ve, tt.file, tt.size, tt.ct)
			if ve.HasErrors() != tt.wantErr {
				t.Fatalf("errors = %v, wantErr %v", ve.Error(), tt.wantErr)
			}
			if ext != tt.wantExt {
				t.Errorf("ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}
}
