package validator

import "testing"

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"a@b.com",
		"first.last@example.edu",
		"user+tag@sub.domain.org",
	}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Fatalf("ValidateEmail(%q) = %v, want nil", email, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"no-at-sign",
		"@missing-local.com",
		"spaces in@domain.com",
		"user@",
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Fatalf("ValidateEmail(%q) = nil, want error", email)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Admissions@School.EDU "); got != "admissions@school.edu" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
