package identity

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "+1 (234) 567-8900", want: "+12345678900"},
		{raw: "2345678900", want: "+12345678900"},
		{raw: "12345678900", want: "+12345678900"},
		{raw: "(234) 567.8900", want: "+12345678900"},
		{raw: "+44 20 7946 0958", want: "+442079460958"},
		{raw: "442079460958", want: "+442079460958"},
		{raw: "  +19998887777 ", want: "+19998887777"},
		{raw: "abc", want: ""},
		{raw: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Fatalf("NormalizePhone(%q): expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{
		"+1 (234) 567-8900",
		"2345678900",
		"12345678900",
		"5551234",
		"+442079460958",
		"00442079460958",
		"+",
		"call me at 234-567-8900 ext 12",
	}
	for _, raw := range inputs {
		once := NormalizePhone(raw)
		if twice := NormalizePhone(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}

func TestNormalizePhone_USTenDigits(t *testing.T) {
	for _, digits := range []string{"2125550100", "4155550199", "9998887777"} {
		if got := NormalizePhone(digits); got != "+1"+digits {
			t.Fatalf("expected +1%s, got %q", digits, got)
		}
	}
}

func TestFormatPhone(t *testing.T) {
	if got := FormatPhone("+12345678900"); got != "+1 (234) 567-8900" {
		t.Fatalf("unexpected US format %q", got)
	}
	if got := FormatPhone("+442079460958"); got != "+442079460958" {
		t.Fatalf("expected non US number unchanged, got %q", got)
	}
	if got := FormatPhone("+1234"); got != "+1234" {
		t.Fatalf("expected short number unchanged, got %q", got)
	}
}

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+12345678900", "+442079460958", "+12"}
	invalid := []string{"12345678900", "+0123456789", "+1234567890123456", "+1 234", ""}
	for _, phone := range valid {
		if !IsValidPhone(phone) {
			t.Fatalf("expected %q valid", phone)
		}
	}
	for _, phone := range invalid {
		if IsValidPhone(phone) {
			t.Fatalf("expected %q invalid", phone)
		}
	}
}
