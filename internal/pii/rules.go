package pii

import (
	"regexp"
	"strings"
)

// DefaultRules returns the built-in categorical detectors in application
// order. The order is load-bearing: a value must be consumed by its most
// specific matcher before a generic one gets a chance at its substrings
// (a 16-digit card number must never be half-eaten by the 4-digit postal
// matcher), so anchored formats sit first and loose heuristics last.
// Replacement tokens are bracketed uppercase labels, which no rule in this
// list can re-match; redaction is therefore idempotent.
func DefaultRules() []PatternRule {
	return []PatternRule{
		{
			Name:        "email",
			Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			Replacement: "[EMAIL]",
			Description: "Email addresses",
		},
		{
			Name:        "url",
			Pattern:     regexp.MustCompile(`\bhttps?://[^\s<>"']+`),
			Replacement: "[URL]",
			Description: "HTTP and HTTPS URLs",
		},
		{
			Name:        "phone",
			Pattern:     regexp.MustCompile(`(?:\+63\s?9\d{2}|\b09\d{2})[- ]?\d{3}[- ]?\d{4}\b`),
			Replacement: "[PHONE]",
			Description: "Philippine mobile numbers (09xx and +639xx formats)",
		},
		{
			Name:        "landline",
			Pattern:     regexp.MustCompile(`\(0\d{1,2}\)\s?\d{3,4}[- ]?\d{4}\b|\b0\d{1,2}[- ]\d{3,4}[- ]?\d{4}\b`),
			Replacement: "[PHONE]",
			Description: "Philippine landline numbers with area code",
		},
		{
			Name:        "credit_card",
			Pattern:     regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
			Replacement: "[CARD_NUMBER]",
			Description: "16-digit payment card numbers",
		},
		{
			Name: "national_id",
			// Longest formats first: alternation in RE2 takes the first
			// branch that matches at a position.
			Pattern:     regexp.MustCompile(`\b\d{2}-\d{9}-\d\b|\b\d{4}-\d{7}-\d\b|\b\d{2}-\d{7}-\d\b|\b\d{3}-\d{3}-\d{3}(?:-\d{3})?\b`),
			Replacement: "[ID_NUMBER]",
			Description: "PhilHealth, UMID, SSS, and TIN identifiers",
		},
		{
			Name:        "ip_address",
			Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
			Replacement: "[IP_ADDRESS]",
			Description: "IPv4 addresses",
		},
		{
			Name:        "street_address",
			Pattern:     regexp.MustCompile(`(?i)\b\d{1,5}\s+[A-Za-z0-9.'\s]{2,40}?\b(?:street|st\.?|avenue|ave\.?|road|rd\.?|boulevard|blvd\.?|drive|dr\.?|lane|ln\.?|highway|hwy\.?|purok|barangay|brgy\.?|village|subdivision)\b`),
			Replacement: "[ADDRESS]",
			Description: "Street addresses with a number and a street-type suffix",
		},
		{
			// Runs after street_address so "123 Maple Street" is consumed
			// whole instead of leaving "123 [NAME]" behind.
			Name:        "person_name",
			Pattern:     regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`),
			Replacement: "[NAME]",
			Description: "Capitalized word sequences resembling personal names",
		},
		{
			Name:        "postal_code",
			Pattern:     regexp.MustCompile(`\b\d{4}\b`),
			Replacement: "[POSTAL_CODE]",
			Description: "4-digit Philippine postal codes",
		},
		{
			Name:        "password",
			Pattern:     regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|passcode|pin|cvv|secret|api[_-]?key|token)\s*[:=]\s*\S+`),
			Replacement: "[PASSWORD]",
			Description: "Credential assignments such as password: value",
		},
	}
}

// DomainRules returns the built-in domain pattern library, applied after the
// categorical detectors. By then generic formats are already bracket tokens,
// so these looser banking patterns cannot fight the built-ins over the same
// substrings.
func DomainRules() []PatternRule {
	return []PatternRule{
		{
			Name:        "iban",
			Pattern:     regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
			Replacement: "[IBAN]",
			Description: "International bank account numbers",
		},
		{
			Name:        "swift",
			Pattern:     regexp.MustCompile(`\b[A-Z]{4}PH[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`),
			Replacement: "[SWIFT]",
			Description: "SWIFT/BIC codes of Philippine banks",
		},
		{
			Name:        "bank_ref",
			Pattern:     regexp.MustCompile(`\b(?:BPI|BDO|UBP|MBTC|PNB|LBP)[-:]?\d{6,12}\b`),
			Replacement: "[BANK_REF]",
			Description: "Bank-prefixed reference identifiers",
		},
		{
			Name:        "account_number",
			Pattern:     regexp.MustCompile(`\b\d{10,12}\b`),
			Replacement: "[ACCOUNT_NUMBER]",
			Description: "Bare 10-12 digit deposit account numbers",
		},
	}
}

// SensitiveColumnKeywords lists substrings that mark a column name as
// sensitive. These match field names, not cell contents.
func SensitiveColumnKeywords() []string {
	return []string{
		"password",
		"passwd",
		"pin",
		"cvv",
		"otp",
		"token",
		"secret",
		"api_key",
		"apikey",
		"routing",
		"swift",
		"iban",
		"account_number",
		"accountnumber",
		"card_number",
		"cardnumber",
	}
}

// IsSensitiveColumn reports whether a column name matches the sensitive
// keyword list, case-insensitively and on substrings ("user_password"
// matches "password").
func IsSensitiveColumn(name string, keywords []string) bool {
	nameLower := strings.ToLower(strings.TrimSpace(name))
	for _, keyword := range keywords {
		if strings.Contains(nameLower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
