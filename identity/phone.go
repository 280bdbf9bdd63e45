package identity

import (
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// NormalizePhone reduces raw to digits with an optional leading plus and
// applies the North American defaults. The result is stable under repeated
// normalization.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")

	var digits strings.Builder
	digits.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}

	if !plus && len(number) == 10 {
		return "+1" + number
	}
	// 11 digits with a leading 1 and every other length keep their digits.
	return "+" + number
}

// FormatPhone renders US numbers as +1 (XXX) XXX-XXXX. Anything else is
// returned unchanged.
func FormatPhone(phone string) string {
	if len(phone) != 12 || !strings.HasPrefix(phone, "+1") {
		return phone
	}
	local := phone[2:]
	for _, r := range local {
		if r < '0' || r > '9' {
			return phone
		}
	}
	return "+1 (" + local[0:3] + ") " + local[3:6] + "-" + local[6:]
}

func IsValidPhone(phone string) bool {
	return e164Pattern.MatchString(phone)
}
