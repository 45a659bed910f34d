package eval

import "time"

// Sample is one labeled prompt from an evaluation dataset. Label 1 marks an
// adversarial prompt, 0 a benign one.
type Sample struct {
	Text      string `csv:"text" parquet:"text" json:"text"`
	LabelText string `csv:"label_text" parquet:"label_text" json:"label_text"`
	Label     int    `csv:"label" parquet:"label" json:"label"`
}

// FileFormat identifies a dataset file format
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatUnknown FileFormat = "unknown"
)

// Report is the evaluation outcome over one dataset.
type Report struct {
	Total          int64         `json:"total"`
	Skipped        int64         `json:"skipped"`
	TruePositives  int64         `json:"true_positives"`
	FalsePositives int64         `json:"false_positives"`
	TrueNegatives  int64         `json:"true_negatives"`
	FalseNegatives int64         `json:"false_negatives"`
	PIIHits        int64         `json:"pii_hits"`
	Duration       time.Duration `json:"duration"`
}

// Recall returns the fraction of adversarial samples the detector caught.
func (r *Report) Recall() float64 {
	denom := r.TruePositives + r.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(r.TruePositives) / float64(denom)
}

// Precision returns the fraction of positive detections that were right.
func (r *Report) Precision() float64 {
	denom := r.TruePositives + r.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(r.TruePositives) / float64(denom)
}

// Accuracy returns the overall fraction of correct classifications.
func (r *Report) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.TruePositives+r.TrueNegatives) / float64(r.Total)
}

// Config contains evaluation pipeline configuration
type Config struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`
}
