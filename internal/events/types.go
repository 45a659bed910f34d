package events

import (
	"time"

	"github.com/kuwago-ai/datagate/internal/pii"
	"github.com/kuwago-ai/datagate/internal/usage"
)

// Type discriminates hub events.
type Type string

const (
	// TypeRedaction is emitted when a request's payload was scrubbed
	TypeRedaction Type = "redaction"
	// TypeInjectionBlock is emitted when the guard rejects input
	TypeInjectionBlock Type = "injection_block"
	// TypeUsageAnomaly is emitted when the usage monitor flags a key
	TypeUsageAnomaly Type = "usage_anomaly"
	// TypeRateLimit is emitted when a request hits its window cap
	TypeRateLimit Type = "rate_limit"
)

// Event is one message pushed to connected ops clients.
type Event struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data"`
}

// RedactionEvent reports what a redaction pass found. Redacted token types
// only; never the original text.
type RedactionEvent struct {
	Route    string     `json:"route"`
	ClientIP string     `json:"client_ip"`
	Result   pii.Result `json:"result"`
}

// InjectionBlockEvent reports a guard rejection.
type InjectionBlockEvent struct {
	Route      string   `json:"route"`
	ClientIP   string   `json:"client_ip"`
	Field      string   `json:"field"`
	Indicators []string `json:"indicators"`
}

// UsageAnomalyEvent reports a flagged usage key.
type UsageAnomalyEvent struct {
	Route       string      `json:"route"`
	ClientIP    string      `json:"client_ip"`
	Category    string      `json:"category"`
	Reason      string      `json:"reason"`
	RecentCount int         `json:"recent_count"`
	Stats       usage.Stats `json:"stats"`
}

// RateLimitEvent reports a denied request.
type RateLimitEvent struct {
	Route    string `json:"route"`
	ClientIP string `json:"client_ip"`
	Category string `json:"category"`
	ResetMS  int64  `json:"reset_ms"`
}
