package domain

import "strings"

// RoutingCodeLength is the fixed length of a bank routing code (IFSC).
const RoutingCodeLength = 11

// NormalizeRoutingCode trims and uppercases a routing code. It does not
// validate; see ValidRoutingCode.
func NormalizeRoutingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoutingCode reports whether code, once normalized, has the expected
// length. Character classes are left to the lookup service.
func ValidRoutingCode(code string) bool {
	return len(NormalizeRoutingCode(code)) == RoutingCodeLength
}

// SameRoutingCode compares two routing codes case-insensitively after trim.
func SameRoutingCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
