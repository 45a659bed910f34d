package pii

import "regexp"

// PatternRule pairs a compiled expression with its replacement token.
// Rules are applied in slice order: longer, more specific formats must sit
// ahead of shorter generic ones, or a generic rule can consume a substring
// of a value a later rule was meant to match whole.
type PatternRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	Description string
}

// Result summarizes a redaction pass. Derived from before/after text on
// demand, never stored.
type Result struct {
	OriginalLength int      `json:"original_length"`
	RedactedLength int      `json:"redacted_length"`
	RedactionCount int      `json:"redaction_count"`
	RedactionTypes []string `json:"redaction_types"`
}

// CSVOptions control structured-data redaction.
type CSVOptions struct {
	PreserveHeaders bool `json:"preserve_headers"`
	MaxRows         int  `json:"max_rows"`
}
