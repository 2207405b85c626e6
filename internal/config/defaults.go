package config

// DefaultConfig returns the built-in configuration: three retries without
// backoff delay, lease watchdog disabled and all three pages expected.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			RequestTimeoutMS: 5000,
			HistoryLimit:     1000,
		},
		Queue: QueueConfig{
			MaxRetries:         3,
			RetryMultiplier:    2,
			WaitPollIntervalMS: 100,
			WaitTimeoutMS:      30000,
		},
		Workers: map[string]WorkerConfig{},
		Pipeline: PipelineConfig{
			ExpectedOutputs: []string{"faq", "product_page", "comparison_page"},
			OutputDir:       "output",
			Concurrency:     2,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 14,
			},
		},
		Store: StoreConfig{},
	}
}
