package guard

import "strings"

// SanitizeOptions control string cleaning.
type SanitizeOptions struct {
	MaxLength int
}

// SanitizeString cleans a single text value: control characters are stripped
// (newline and tab survive so multi-line prompts stay readable), surrounding
// whitespace is trimmed, and anything past MaxLength is silently dropped.
// The result is deterministic for a given input and limit; callers are not
// told about truncation.
func SanitizeString(value string, opts SanitizeOptions) string {
	var b strings.Builder
	b.Grow(len(value))

	for _, r := range value {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.TrimSpace(b.String())

	if opts.MaxLength > 0 {
		runes := []rune(cleaned)
		if len(runes) > opts.MaxLength {
			cleaned = string(runes[:opts.MaxLength])
		}
	}

	return cleaned
}
