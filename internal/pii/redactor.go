package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// tokenPattern recognizes replacement tokens in redacted output. Stats are a
// textual proxy: input that already contained bracketed uppercase labels is
// counted too, which is an accepted edge case.
var tokenPattern = regexp.MustCompile(`\[([A-Z][A-Z_]*)\]`)

// Redactor scrubs PII from free text and from CSV content. Built-in
// categorical detectors run first, then the domain pattern library over the
// already partially redacted text.
type Redactor struct {
	builtin     []PatternRule
	custom      []PatternRule
	enabled     map[string]bool
	keywords    []string
	csvDefaults CSVOptions
	config      config.PrivacyConfig
	logger      *logger.Logger
}

// New creates a Redactor from configuration. Custom patterns from the config
// are compiled here and appended after the built-in domain library; a bad
// expression is a startup error.
func New(cfg config.PrivacyConfig, log *logger.Logger) (*Redactor, error) {
	r := &Redactor{
		builtin: DefaultRules(),
		custom:  DomainRules(),
		enabled: make(map[string]bool),
		config:  cfg,
		logger:  log,
		csvDefaults: CSVOptions{
			PreserveHeaders: cfg.CSV.PreserveHeaders,
			MaxRows:         cfg.CSV.MaxRows,
		},
	}

	if r.csvDefaults.MaxRows <= 0 {
		r.csvDefaults.MaxRows = 50
	}

	if err := r.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	for _, custom := range cfg.CustomPatterns {
		compiled, err := regexp.Compile(custom.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid custom pattern %q: %w", custom.Name, err)
		}
		replacement := custom.Replacement
		if replacement == "" {
			replacement = "[" + strings.ToUpper(custom.Name) + "]"
		}
		r.custom = append(r.custom, PatternRule{
			Name:        custom.Name,
			Pattern:     compiled,
			Replacement: replacement,
			Description: custom.Description,
		})
	}

	r.keywords = SensitiveColumnKeywords()
	r.keywords = append(r.keywords, cfg.SensitiveColumns...)

	log.Info("Redactor initialized",
		zap.Int("builtin_rules", len(r.builtin)),
		zap.Int("enabled_rules", r.countEnabledRules()),
		zap.Int("custom_rules", len(r.custom)),
	)

	return r, nil
}

// configureDetectors enables/disables built-in detectors based on configuration
func (r *Redactor) configureDetectors(detectors []string) error {
	for _, rule := range r.builtin {
		r.enabled[rule.Name] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range r.builtin {
				r.enabled[rule.Name] = true
			}
			continue
		}

		found := false
		for _, rule := range r.builtin {
			if rule.Name == detector {
				r.enabled[rule.Name] = true
				found = true
				break
			}
		}

		if !found {
			return fmt.Errorf("unknown detector: %s", detector)
		}
	}

	return nil
}

// RedactText scrubs PII from arbitrary text. Best-effort filter: it never
// fails, never panics, and returns empty input unchanged.
func (r *Redactor) RedactText(text string) string {
	if !r.config.Enabled || text == "" {
		return text
	}

	redacted := text

	for _, rule := range r.builtin {
		if !r.enabled[rule.Name] {
			continue
		}
		redacted = rule.Pattern.ReplaceAllString(redacted, rule.Replacement)
	}

	for _, rule := range r.custom {
		redacted = rule.Pattern.ReplaceAllString(redacted, rule.Replacement)
	}

	return redacted
}

// RedactCSV scrubs the data rows of CSV content while keeping the schema
// usable downstream. The header line is emitted verbatim when
// PreserveHeaders is set; at most MaxRows non-blank data lines follow, each
// run through RedactText on its raw line text. Blank lines are dropped.
// This is a line splitter, not a CSV parser: quoted fields with embedded
// newlines are out of scope.
func (r *Redactor) RedactCSV(csvText string, opts CSVOptions) string {
	if csvText == "" {
		return csvText
	}

	if opts.MaxRows <= 0 {
		opts.MaxRows = r.csvDefaults.MaxRows
	}

	lines := strings.Split(strings.ReplaceAll(csvText, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	start := 0
	if opts.PreserveHeaders && len(lines) > 0 {
		out = append(out, lines[0])
		start = 1
	}

	emitted := 0
	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if emitted >= opts.MaxRows {
			break
		}
		out = append(out, r.RedactText(line))
		emitted++
	}

	return strings.Join(out, "\n")
}

// CSVDefaults returns the configured structured-data redaction defaults.
func (r *Redactor) CSVDefaults() CSVOptions {
	return r.csvDefaults
}

// ContainsPII reports whether redaction would alter the text.
func (r *Redactor) ContainsPII(text string) bool {
	return r.RedactText(text) != text
}

// Stats derives a redaction summary by scanning the redacted text for
// replacement tokens.
func (r *Redactor) Stats(original, redacted string) Result {
	matches := tokenPattern.FindAllString(redacted, -1)

	seen := make(map[string]bool)
	types := make([]string, 0)
	for _, token := range matches {
		if !seen[token] {
			seen[token] = true
			types = append(types, token)
		}
	}
	sort.Strings(types)

	return Result{
		OriginalLength: len(original),
		RedactedLength: len(redacted),
		RedactionCount: len(matches),
		RedactionTypes: types,
	}
}

// SensitiveColumns returns the column names from a CSV header line that
// match the sensitive keyword list.
func (r *Redactor) SensitiveColumns(headerLine string) []string {
	var flagged []string
	for _, column := range strings.Split(headerLine, ",") {
		if IsSensitiveColumn(column, r.keywords) {
			flagged = append(flagged, strings.TrimSpace(column))
		}
	}
	return flagged
}

// EnabledRules returns the names of enabled built-in detectors.
func (r *Redactor) EnabledRules() []string {
	var enabled []string
	for _, rule := range r.builtin {
		if r.enabled[rule.Name] {
			enabled = append(enabled, rule.Name)
		}
	}
	return enabled
}

// countEnabledRules returns the number of enabled detection rules
func (r *Redactor) countEnabledRules() int {
	count := 0
	for _, enabled := range r.enabled {
		if enabled {
			count++
		}
	}
	return count
}
