// Package guard is the single recommended gate for user-supplied text headed
// into an LLM prompt: sanitization, emptiness checks, and injection
// detection composed into one pass/fail contract.
package guard

import (
	"fmt"
	"strings"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/injection"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// FailureKind discriminates guard failures.
type FailureKind string

const (
	// FailureEmpty means a required field was empty after sanitization
	FailureEmpty FailureKind = "empty"
	// FailureInjection means injection indicators fired on the field
	FailureInjection FailureKind = "injection"
)

// Failure is a structured guard rejection. It maps to a caller-chosen
// response; the guard itself knows nothing about HTTP status codes.
type Failure struct {
	Kind   FailureKind       `json:"kind"`
	Field  string            `json:"field"`
	Reason string            `json:"reason"`
	Signal *injection.Signal `json:"signal,omitempty"`
}

// Error implements the error interface
func (f *Failure) Error() string {
	return f.Reason
}

// Input describes one text value to gate.
type Input struct {
	Value           string
	FieldName       string
	MaxLength       int
	AllowEmpty      bool
	DetectInjection bool
}

// Guard composes the sanitizer with an injection detector.
type Guard struct {
	detector *injection.Detector
	config   config.GuardConfig
	logger   *logger.Logger
}

// New creates a Guard from configuration.
func New(cfg config.GuardConfig, log *logger.Logger) *Guard {
	detector := injection.New()

	log.Info("Input guard initialized",
		zap.String("mode", cfg.Mode),
		zap.Int("max_length", cfg.MaxLength),
		zap.Int("injection_patterns", detector.PatternCount()),
	)

	return &Guard{
		detector: detector,
		config:   cfg,
		logger:   log,
	}
}

// GuardTextInput sanitizes one value and applies the configured checks. On
// success the sanitized string is returned with a nil Failure; on rejection
// the Failure carries a human-readable reason and, for injection failures,
// the full detection signal for logging.
func (g *Guard) GuardTextInput(in Input) (string, *Failure) {
	maxLength := in.MaxLength
	if maxLength <= 0 {
		maxLength = g.config.MaxLength
	}

	cleaned := SanitizeString(in.Value, SanitizeOptions{MaxLength: maxLength})

	if cleaned == "" && !in.AllowEmpty {
		return "", &Failure{
			Kind:   FailureEmpty,
			Field:  in.FieldName,
			Reason: fmt.Sprintf("%s must not be empty", in.FieldName),
		}
	}

	if in.DetectInjection && g.config.DetectInjection {
		signal := g.detector.Detect(cleaned)
		if signal.IsInjection {
			g.logger.Warn("Injection indicators in input",
				zap.String("field", in.FieldName),
				zap.Int("indicators", len(signal.Indicators)),
			)
			return "", &Failure{
				Kind:   FailureInjection,
				Field:  in.FieldName,
				Reason: fmt.Sprintf("%s contains disallowed instruction-override content", in.FieldName),
				Signal: &signal,
			}
		}
	}

	return cleaned, nil
}

// SanitizeFields is the batch variant over a record with several string
// fields. It never fails fast: every named field is sanitized and scanned,
// and per-field issue lists accumulate so the caller can decide policy
// (for example, reject only when an issue carries the "injection:" prefix).
func (g *Guard) SanitizeFields(record map[string]string, fields []string) (map[string]string, map[string][]string) {
	data := make(map[string]string, len(record))
	for k, v := range record {
		data[k] = v
	}

	issues := make(map[string][]string)

	for _, field := range fields {
		original, ok := record[field]
		if !ok {
			continue
		}

		cleaned := SanitizeString(original, SanitizeOptions{MaxLength: g.config.MaxLength})
		data[field] = cleaned

		if cleaned != original {
			issues[field] = append(issues[field], "modified")
		}

		if g.config.DetectInjection {
			signal := g.detector.Detect(cleaned)
			for _, indicator := range signal.Indicators {
				issues[field] = append(issues[field], "injection:"+indicator)
			}
		}
	}

	return data, issues
}

// HasInjectionIssue reports whether any field's issue list contains an
// injection-prefixed entry.
func HasInjectionIssue(issues map[string][]string) bool {
	for _, list := range issues {
		for _, issue := range list {
			if strings.HasPrefix(issue, "injection:") {
				return true
			}
		}
	}
	return false
}
