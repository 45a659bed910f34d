package pii

import (
	"strings"
	"testing"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

func testConfig() config.PrivacyConfig {
	return config.PrivacyConfig{
		Enabled:   true,
		Detectors: []string{"all"},
		CSV: config.CSVConfig{
			PreserveHeaders: true,
			MaxRows:         50,
		},
	}
}

func newTestRedactor(t *testing.T, cfg config.PrivacyConfig) *Redactor {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}
	r, err := New(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create redactor: %v", err)
	}
	return r
}

func TestRedactText(t *testing.T) {
	r := newTestRedactor(t, testConfig())

	t.Run("EmptyInput", func(t *testing.T) {
		if got := r.RedactText(""); got != "" {
			t.Errorf("Empty input should stay empty, got %q", got)
		}
	})

	t.Run("Email", func(t *testing.T) {
		got := r.RedactText("contact juan.delacruz@example.com for details")
		if got != "contact [EMAIL] for details" {
			t.Errorf("Email not redacted: %q", got)
		}
	})

	t.Run("MobileNumber", func(t *testing.T) {
		for _, input := range []string{
			"call 09171234567 today",
			"call +639171234567 today",
			"call 0917-123-4567 today",
		} {
			got := r.RedactText(input)
			if !strings.Contains(got, "[PHONE]") {
				t.Errorf("Phone not redacted in %q: %q", input, got)
			}
			if strings.ContainsAny(got, "0123456789") {
				t.Errorf("Digits leaked from %q: %q", input, got)
			}
		}
	})

	t.Run("CreditCardBeforePostalCode", func(t *testing.T) {
		got := r.RedactText("card 4111-1111-1111-1111 on file")
		if got != "card [CARD_NUMBER] on file" {
			t.Errorf("Card number not consumed whole: %q", got)
		}
	})

	t.Run("NationalID", func(t *testing.T) {
		got := r.RedactText("sss 34-1234567-8 tin 123-456-789-000")
		if strings.Count(got, "[ID_NUMBER]") != 2 {
			t.Errorf("National IDs not redacted: %q", got)
		}
	})

	t.Run("AddressBeforeName", func(t *testing.T) {
		got := r.RedactText("lives at 123 Maple Street in town")
		if !strings.Contains(got, "[ADDRESS]") {
			t.Errorf("Address not redacted: %q", got)
		}
		if strings.Contains(got, "123") {
			t.Errorf("House number leaked: %q", got)
		}
	})

	t.Run("PersonName", func(t *testing.T) {
		got := r.RedactText("payee is Juan Dela Cruz per the form")
		if !strings.Contains(got, "[NAME]") {
			t.Errorf("Name not redacted: %q", got)
		}
	})

	t.Run("Password", func(t *testing.T) {
		got := r.RedactText("password: hunter2")
		if got != "[PASSWORD]" {
			t.Errorf("Credential not redacted: %q", got)
		}
	})

	t.Run("BankReference", func(t *testing.T) {
		got := r.RedactText("deposit ref BPI-12345678 posted")
		if got != "deposit ref [BANK_REF] posted" {
			t.Errorf("Bank reference not redacted: %q", got)
		}
	})

	t.Run("CleanTextUnchanged", func(t *testing.T) {
		input := "the quick brown fox jumps over the lazy dog"
		if got := r.RedactText(input); got != input {
			t.Errorf("Clean text altered: %q", got)
		}
	})
}

func TestRedactTextIdempotent(t *testing.T) {
	r := newTestRedactor(t, testConfig())

	inputs := []string{
		"email juan@example.com phone 09171234567",
		"Juan Dela Cruz, 123 Maple Street, card 4111111111111111",
		"already redacted [EMAIL] and [PHONE]",
	}

	for _, input := range inputs {
		once := r.RedactText(input)
		twice := r.RedactText(once)
		if once != twice {
			t.Errorf("Redaction not idempotent for %q:\n once: %q\ntwice: %q", input, once, twice)
		}
	}
}

func TestRedactTextDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	r := newTestRedactor(t, cfg)

	input := "juan@example.com 09171234567"
	if got := r.RedactText(input); got != input {
		t.Errorf("Disabled redactor altered text: %q", got)
	}
}

func TestSelectiveDetectors(t *testing.T) {
	cfg := testConfig()
	cfg.Detectors = []string{"phone"}
	r := newTestRedactor(t, cfg)

	got := r.RedactText("reach juan@example.com or 09171234567")
	if !strings.Contains(got, "juan@example.com") {
		t.Errorf("Disabled email detector still fired: %q", got)
	}
	if !strings.Contains(got, "[PHONE]") {
		t.Errorf("Enabled phone detector did not fire: %q", got)
	}
}

func TestUnknownDetector(t *testing.T) {
	cfg := testConfig()
	cfg.Detectors = []string{"sonar"}
	log := &logger.Logger{Logger: zap.NewNop()}
	if _, err := New(cfg, log); err == nil {
		t.Error("Expected error for unknown detector")
	}
}

func TestCustomPatterns(t *testing.T) {
	t.Run("AppliedAfterBuiltins", func(t *testing.T) {
		cfg := testConfig()
		cfg.CustomPatterns = []config.CustomPattern{
			{Name: "ticket", Pattern: `\bTKT-\d+\b`},
		}
		r := newTestRedactor(t, cfg)

		got := r.RedactText("see TKT-98765 for history")
		if got != "see [TICKET] for history" {
			t.Errorf("Custom pattern not applied: %q", got)
		}
	})

	t.Run("ExplicitReplacement", func(t *testing.T) {
		cfg := testConfig()
		cfg.CustomPatterns = []config.CustomPattern{
			{Name: "ticket", Pattern: `\bTKT-\d+\b`, Replacement: "[CASE]"},
		}
		r := newTestRedactor(t, cfg)

		if got := r.RedactText("TKT-1"); got != "[CASE]" {
			t.Errorf("Explicit replacement ignored: %q", got)
		}
	})

	t.Run("InvalidPatternFailsStartup", func(t *testing.T) {
		cfg := testConfig()
		cfg.CustomPatterns = []config.CustomPattern{
			{Name: "broken", Pattern: `([`},
		}
		log := &logger.Logger{Logger: zap.NewNop()}
		if _, err := New(cfg, log); err == nil {
			t.Error("Expected error for invalid custom pattern")
		}
	})
}

func TestRedactCSV(t *testing.T) {
	r := newTestRedactor(t, testConfig())

	t.Run("PreservesHeaderRedactsRows", func(t *testing.T) {
		input := "name,phone\nJuan Dela Cruz,09171234567\nMaria Santos,09281234567"
		got := r.RedactCSV(input, CSVOptions{PreserveHeaders: true, MaxRows: 50})

		lines := strings.Split(got, "\n")
		if len(lines) != 3 {
			t.Fatalf("Expected 3 lines, got %d: %q", len(lines), got)
		}
		if lines[0] != "name,phone" {
			t.Errorf("Header was altered: %q", lines[0])
		}
		for _, line := range lines[1:] {
			if line != "[NAME],[PHONE]" {
				t.Errorf("Data row not fully redacted: %q", line)
			}
		}
	})

	t.Run("RowCap", func(t *testing.T) {
		input := "name\nJuan Dela Cruz\nMaria Santos\nPedro Reyes"
		got := r.RedactCSV(input, CSVOptions{PreserveHeaders: true, MaxRows: 2})

		lines := strings.Split(got, "\n")
		if len(lines) != 3 {
			t.Errorf("Expected header plus 2 rows, got %d lines: %q", len(lines), got)
		}
	})

	t.Run("BlankLinesDropped", func(t *testing.T) {
		input := "name\n\nJuan Dela Cruz\n\nMaria Santos\n"
		got := r.RedactCSV(input, CSVOptions{PreserveHeaders: true, MaxRows: 2})

		lines := strings.Split(got, "\n")
		if len(lines) != 3 {
			t.Fatalf("Blank lines not dropped, got %d lines: %q", len(lines), got)
		}
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				t.Errorf("Blank line survived: %q", got)
			}
		}
	})

	t.Run("WithoutHeaderPreservation", func(t *testing.T) {
		input := "name,phone\nJuan Dela Cruz,09171234567"
		got := r.RedactCSV(input, CSVOptions{PreserveHeaders: false, MaxRows: 50})

		if strings.Contains(got, "name,phone") && !strings.Contains(got, "[") {
			t.Errorf("First line should have been treated as data: %q", got)
		}
	})

	t.Run("CRLFInput", func(t *testing.T) {
		input := "name\r\nJuan Dela Cruz\r\nMaria Santos"
		got := r.RedactCSV(input, CSVOptions{PreserveHeaders: true, MaxRows: 50})

		if strings.Contains(got, "\r") {
			t.Errorf("Carriage returns survived: %q", got)
		}
		if strings.Count(got, "[NAME]") != 2 {
			t.Errorf("Rows not redacted: %q", got)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		if got := r.RedactCSV("", CSVOptions{PreserveHeaders: true, MaxRows: 50}); got != "" {
			t.Errorf("Empty input should stay empty, got %q", got)
		}
	})

	t.Run("ZeroMaxRowsUsesDefault", func(t *testing.T) {
		rows := make([]string, 0, 61)
		rows = append(rows, "name")
		for i := 0; i < 60; i++ {
			rows = append(rows, "Juan Dela Cruz")
		}
		got := r.RedactCSV(strings.Join(rows, "\n"), CSVOptions{PreserveHeaders: true})

		lines := strings.Split(got, "\n")
		if len(lines) != 51 {
			t.Errorf("Expected header plus 50 default-capped rows, got %d lines", len(lines))
		}
	})
}

func TestContainsPII(t *testing.T) {
	r := newTestRedactor(t, testConfig())

	if !r.ContainsPII("mail juan@example.com") {
		t.Error("Email should register as PII")
	}
	if r.ContainsPII("the quick brown fox") {
		t.Error("Clean text should not register as PII")
	}
	if r.ContainsPII("") {
		t.Error("Empty text should not register as PII")
	}
}

func TestStats(t *testing.T) {
	r := newTestRedactor(t, testConfig())

	original := "juan@example.com and maria@example.com at 09171234567"
	redacted := r.RedactText(original)
	stats := r.Stats(original, redacted)

	if stats.RedactionCount != 3 {
		t.Errorf("Expected 3 redactions, got %d", stats.RedactionCount)
	}
	if len(stats.RedactionTypes) != 2 {
		t.Fatalf("Expected 2 distinct types, got %v", stats.RedactionTypes)
	}
	if stats.RedactionTypes[0] != "[EMAIL]" || stats.RedactionTypes[1] != "[PHONE]" {
		t.Errorf("Types not sorted as expected: %v", stats.RedactionTypes)
	}
	if stats.OriginalLength != len(original) || stats.RedactedLength != len(redacted) {
		t.Error("Length fields do not match inputs")
	}
}

func TestSensitiveColumns(t *testing.T) {
	cfg := testConfig()
	cfg.SensitiveColumns = []string{"maiden_name"}
	r := newTestRedactor(t, cfg)

	flagged := r.SensitiveColumns("name,user_password,email,cvv_code,maiden_name")

	want := map[string]bool{"user_password": true, "cvv_code": true, "maiden_name": true}
	if len(flagged) != len(want) {
		t.Fatalf("Expected %d flagged columns, got %v", len(want), flagged)
	}
	for _, column := range flagged {
		if !want[column] {
			t.Errorf("Unexpected flagged column %q", column)
		}
	}
}

func TestIsSensitiveColumn(t *testing.T) {
	keywords := SensitiveColumnKeywords()

	if !IsSensitiveColumn("User_Password", keywords) {
		t.Error("Substring match should be case-insensitive")
	}
	if IsSensitiveColumn("display_name", keywords) {
		t.Error("Plain column flagged as sensitive")
	}
}
