// Package usage tracks per-key request activity over a sliding wall-clock
// window and flags anomalous spikes. Signals are advisory: the tracker never
// blocks a request; combining the flag with rate limiting is the caller's
// policy decision.
package usage

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kuwago-ai/datagate/internal/config"
	"github.com/kuwago-ai/datagate/internal/logger"
	"go.uber.org/zap"
)

// Event is one usage observation to record.
type Event struct {
	Route    string
	IP       string
	UserID   string
	Category string
	Units    float64
}

// Record is a stored observation. Records older than the window are pruned
// on every insert and never count toward current stats.
type Record struct {
	Timestamp time.Time
	Route     string
	IP        string
	UserID    string
	Category  string
	Units     float64
}

// Stats holds the streaming aggregates over the current window, accumulated
// with Welford's algorithm. M2 is the running sum of squared deviations;
// variance is M2/(count-1).
type Stats struct {
	Count    int     `json:"count"`
	SumUnits float64 `json:"sum_units"`
	Mean     float64 `json:"mean"`
	M2       float64 `json:"m2"`
}

// Variance returns the sample variance of units in the window.
func (s Stats) Variance() float64 {
	if s.Count < 2 {
		return 0
	}
	return s.M2 / float64(s.Count-1)
}

// StdDev returns the sample standard deviation of units in the window.
func (s Stats) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// Signal is the per-event monitoring result.
type Signal struct {
	Anomaly     bool   `json:"anomaly"`
	Reason      string `json:"reason,omitempty"`
	Stats       Stats  `json:"stats"`
	RecentCount int    `json:"recent_count"`
	WindowMS    int64  `json:"window_ms"`
}

// KeySummary is a read-only diagnostic snapshot for one live key. Ages are
// in milliseconds so the JSON form reads the way the field names say.
type KeySummary struct {
	Key         string `json:"key"`
	Count       int    `json:"count"`
	OldestAgeMS int64  `json:"oldest_age_ms"`
}

// Tracker owns the per-key record sequences. It is constructed once at
// startup and handed to request handlers; a single mutex serializes the
// append+prune+recompute critical section.
type Tracker struct {
	records     map[string][]Record
	window      time.Duration
	maxRequests int
	multiplier  float64
	enabled     bool
	logger      *logger.Logger
	mu          sync.Mutex
	done        chan struct{}
}

// New creates a Tracker from configuration.
func New(cfg config.UsageConfig, log *logger.Logger) *Tracker {
	t := &Tracker{
		records:     make(map[string][]Record),
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		multiplier:  cfg.AnomalyMultiplier,
		enabled:     cfg.Enabled,
		logger:      log,
		done:        make(chan struct{}),
	}

	log.Info("Usage tracker initialized",
		zap.Duration("window", cfg.Window),
		zap.Int("max_requests", cfg.MaxRequests),
		zap.Float64("anomaly_multiplier", cfg.AnomalyMultiplier),
	)

	return t
}

// Key builds the composite tracking key for an event.
func Key(category, userID, ip string) string {
	if userID == "" {
		userID = "anon"
	}
	return fmt.Sprintf("%s:%s:%s", category, userID, ip)
}

// Record appends the event to its key's sequence, prunes expired records,
// recomputes window stats in one streaming pass, and runs the anomaly
// checks: the hard request-count cap first, then the statistical spike test
// (only past 5 samples, so small windows don't produce noise).
func (t *Tracker) Record(event Event) Signal {
	if !t.enabled {
		return Signal{WindowMS: t.window.Milliseconds()}
	}

	key := Key(event.Category, event.UserID, event.IP)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	sequence := append(t.records[key], Record{
		Timestamp: now,
		Route:     event.Route,
		IP:        event.IP,
		UserID:    event.UserID,
		Category:  event.Category,
		Units:     event.Units,
	})

	// Prune from the front: records are appended in time order, so the
	// first in-window record bounds the live suffix.
	cutoff := now.Add(-t.window)
	start := 0
	for start < len(sequence) && sequence[start].Timestamp.Before(cutoff) {
		start++
	}
	sequence = sequence[start:]
	t.records[key] = sequence

	stats := computeStats(sequence)

	signal := Signal{
		Stats:       stats,
		RecentCount: stats.Count,
		WindowMS:    t.window.Milliseconds(),
	}

	if stats.Count > t.maxRequests {
		signal.Anomaly = true
		signal.Reason = fmt.Sprintf("hard-threshold: %d requests in window exceeds %d", stats.Count, t.maxRequests)
	} else if stats.Count > 5 {
		stdDev := stats.StdDev()
		if stdDev == 0 {
			// A zero-variance window must not suppress the first large
			// spike.
			stdDev = 1
		}
		threshold := stats.Mean + t.multiplier*stdDev
		if event.Units > threshold {
			signal.Anomaly = true
			signal.Reason = fmt.Sprintf("spike-units: %.2f exceeds threshold %.2f", event.Units, threshold)
		}
	}

	if signal.Anomaly {
		t.logger.Warn("Usage anomaly detected",
			zap.String("key", key),
			zap.String("reason", signal.Reason),
			zap.Int("recent_count", signal.RecentCount),
		)
	}

	return signal
}

// computeStats runs Welford's online algorithm over the pruned sequence.
// Chosen over naive sum-of-squares for numerical stability; a single pass,
// no stored squared sums.
func computeStats(sequence []Record) Stats {
	var stats Stats
	for _, record := range sequence {
		stats.Count++
		stats.SumUnits += record.Units
		delta := record.Units - stats.Mean
		stats.Mean += delta / float64(stats.Count)
		delta2 := record.Units - stats.Mean
		stats.M2 += delta * delta2
	}
	return stats
}

// Summarize returns a diagnostic snapshot of every live key: current record
// count and age of the oldest record. Read-only, for ops visibility.
func (t *Tracker) Summarize() []KeySummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	summaries := make([]KeySummary, 0, len(t.records))

	for key, sequence := range t.records {
		if len(sequence) == 0 {
			continue
		}
		summaries = append(summaries, KeySummary{
			Key:         key,
			Count:       len(sequence),
			OldestAgeMS: now.Sub(sequence[0].Timestamp).Milliseconds(),
		})
	}

	return summaries
}

// Sweep drops keys whose every record has aged out of the window. The
// per-insert prune only touches keys that stay active; this catches the
// one-shot keys that would otherwise leak until restart.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.window)
	removed := 0

	for key, sequence := range t.records {
		if len(sequence) == 0 || sequence[len(sequence)-1].Timestamp.Before(cutoff) {
			delete(t.records, key)
			removed++
		}
	}

	return removed
}

// StartSweep starts a background routine that sweeps dead keys.
func (t *Tracker) StartSweep(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-t.done:
				return
			}
		}
	}()
}

// Close stops the sweep routine.
func (t *Tracker) Close() {
	close(t.done)
}
