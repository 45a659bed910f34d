// Package injection flags instruction-override phrasing in free text.
//
// The detector is a deliberately high-recall heuristic: phrases like "act as
// a consultant" will fire on legitimate text. Callers own the policy for
// what a positive signal means (block, log, or ignore).
package injection

import "regexp"

// Signal is the per-text detection result. Indicators carry the source text
// of every pattern that fired, for observability, not just the first.
type Signal struct {
	IsInjection bool     `json:"is_injection"`
	Indicators  []string `json:"indicators,omitempty"`
}

// Detector runs a fixed, ordered list of case-insensitive patterns.
type Detector struct {
	patterns []*regexp.Regexp
}

// New creates a Detector with the default pattern set.
func New() *Detector {
	return &Detector{patterns: defaultPatterns()}
}

// defaultPatterns covers the common instruction-override families: ignore or
// discard prior instructions, role reassignment, jailbreak vocabulary,
// safety bypass, prompt-boundary forgery, and rule override.
func defaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore\s+(?:all\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|rules?|directives?)`),
		regexp.MustCompile(`(?i)disregard\s+(?:the\s+)?(?:above|previous|prior|earlier)`),
		regexp.MustCompile(`(?i)forget\s+(?:the\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|conversations?)`),
		regexp.MustCompile(`(?i)you\s+are\s+now\s+a?\s*\w+`),
		regexp.MustCompile(`(?i)act\s+as\s+an?\s+\w+`),
		regexp.MustCompile(`(?i)pretend\s+(?:to\s+be|you\s+are)`),
		regexp.MustCompile(`(?i)jailbreak`),
		regexp.MustCompile(`(?i)bypass\s+(?:the\s+)?(?:safety|filters?|restrictions?|guidelines?)`),
		regexp.MustCompile(`(?i)(?:begin|start)\s+(?:system|new)\s+prompt`),
		regexp.MustCompile(`(?i)unfiltered\s+(?:response|answer|output)`),
		regexp.MustCompile(`(?i)override\s+(?:the\s+)?(?:rules?|instructions?|restrictions?)`),
	}
}

// Detect scans text against every pattern and reports all that match.
func (d *Detector) Detect(text string) Signal {
	if text == "" {
		return Signal{}
	}

	var indicators []string
	for _, pattern := range d.patterns {
		if pattern.MatchString(text) {
			indicators = append(indicators, pattern.String())
		}
	}

	return Signal{
		IsInjection: len(indicators) > 0,
		Indicators:  indicators,
	}
}

// PatternCount returns the number of configured patterns.
func (d *Detector) PatternCount() int {
	return len(d.patterns)
}
