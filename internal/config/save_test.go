package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		path   func(dir string) string
		mutate func(*Config)
		check  func(t *testing.T, loaded *Config)
	}{
		{
			name: "worker breaker settings",
			path: func(dir string) string { return filepath.Join(dir, "config.json") },
			mutate: func(c *Config) {
				c.Workers["page-assembler"] = WorkerConfig{BreakerThreshold: 2, BreakerTimeoutMS: 500}
			},
			check: func(t *testing.T, loaded *Config) {
				if got := loaded.Workers["page-assembler"].BreakerThreshold; got != 2 {
					t.Errorf("breaker threshold = %d, want 2", got)
				}
			},
		},
		{
			name: "nested directory is created",
			path: func(dir string) string { return filepath.Join(dir, "nested", "deep", "config.json") },
			check: func(t *testing.T, loaded *Config) {
				if len(loaded.Pipeline.ExpectedOutputs) != 3 {
					t.Errorf("expected outputs = %v", loaded.Pipeline.ExpectedOutputs)
				}
			},
		},
		{
			name: "queue, log and store sections",
			path: func(dir string) string { return filepath.Join(dir, "config.json") },
			mutate: func(c *Config) {
				c.Queue.MaxRetries = 7
				c.Log.Level = "debug"
				c.Store.DBPath = "runs.db"
			},
			check: func(t *testing.T, loaded *Config) {
				if loaded.Queue.MaxRetries != 7 || loaded.Log.Level != "debug" || loaded.Store.DBPath != "runs.db" {
					t.Errorf("loaded config differs: %+v", loaded)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path(t.TempDir())
			cfg := DefaultConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := Load("", path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, loaded)
		})
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Pipeline.Concurrency = 0

	if err := Save(cfg, path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("invalid config was written")
	}
}

func TestSaveReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	for _, retries := range []int{1, 2} {
		cfg := DefaultConfig()
		cfg.Queue.MaxRetries = retries
		if err := Save(cfg, path); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("directory holds %v, want only config.json", names)
	}
	loaded, err := Load("", path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Queue.MaxRetries != 2 {
		t.Errorf("max retries = %d, want 2", loaded.Queue.MaxRetries)
	}
}
