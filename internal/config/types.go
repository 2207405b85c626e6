package config

import "time"

// BusConfig tunes the message bus.
type BusConfig struct {
	RequestTimeoutMS int `json:"request_timeout_ms"` // Request/Reply timeout
	HistoryLimit     int `json:"history_limit"`      // Retained messages; negative keeps everything
}

// RequestTimeout returns the request timeout as a duration.
func (c BusConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// QueueConfig tunes the task queue and its retry policy.
type QueueConfig struct {
	MaxRetries             int     `json:"max_retries"`
	RetryInitialIntervalMS int     `json:"retry_initial_interval_ms"` // 0 retries immediately
	RetryMaxIntervalMS     int     `json:"retry_max_interval_ms"`
	RetryMultiplier        float64 `json:"retry_multiplier"`
	LeaseTimeoutMS         int     `json:"lease_timeout_ms"` // 0 disables the lease watchdog
	WaitPollIntervalMS     int     `json:"wait_poll_interval_ms"`
	WaitTimeoutMS          int     `json:"wait_timeout_ms"`
}

func (c QueueConfig) RetryInitialInterval() time.Duration { return ms(c.RetryInitialIntervalMS) }
func (c QueueConfig) RetryMaxInterval() time.Duration     { return ms(c.RetryMaxIntervalMS) }
func (c QueueConfig) LeaseTimeout() time.Duration         { return ms(c.LeaseTimeoutMS) }
func (c QueueConfig) WaitPollInterval() time.Duration     { return ms(c.WaitPollIntervalMS) }
func (c QueueConfig) WaitTimeout() time.Duration          { return ms(c.WaitTimeoutMS) }

// WorkerConfig holds per-worker circuit breaker settings, keyed by worker id.
// A zero BreakerThreshold leaves the worker without a breaker.
type WorkerConfig struct {
	BreakerThreshold uint32 `json:"breaker_threshold,omitempty"`
	BreakerTimeoutMS int    `json:"breaker_timeout_ms,omitempty"`
}

// BreakerTimeout returns the open-state duration.
func (c WorkerConfig) BreakerTimeout() time.Duration { return ms(c.BreakerTimeoutMS) }

// PipelineConfig controls pipeline runs.
type PipelineConfig struct {
	ExpectedOutputs []string `json:"expected_outputs"` // Page names a run must produce
	OutputDir       string   `json:"output_dir"`
	Concurrency     int      `json:"concurrency"` // Products processed at once
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	Enable     bool `json:"enable"` // File outputs rotate only when set
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level       string         `json:"level"`   // debug, info, warn, error
	Format      string         `json:"format"`  // json or console
	Outputs     []string       `json:"outputs"` // "stdout", "stderr" or file paths
	Development bool           `json:"development"`
	Rotation    RotationConfig `json:"rotation"`
}

// StoreConfig locates the run archive.
type StoreConfig struct {
	DBPath string `json:"db_path"` // Empty disables the archive
}

// Config is the top-level configuration.
type Config struct {
	Bus      BusConfig               `json:"bus"`
	Queue    QueueConfig             `json:"queue"`
	Workers  map[string]WorkerConfig `json:"workers"`
	Pipeline PipelineConfig          `json:"pipeline"`
	Log      LogConfig               `json:"log"`
	Store    StoreConfig             `json:"store"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
