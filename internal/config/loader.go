package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/marcozac/go-jsonc"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	// Strip JSONC comments and unmarshal
	var cfg Config
	if err := jsonc.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// Default returns a Config with every field set to its documented default,
// for callers that need a working config without a file on disk (e.g. a CLI
// fallback when no config path was given).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}

	if cfg.Classify.HighConfidence == 0 {
		cfg.Classify.HighConfidence = 0.7
	}
	if cfg.Classify.LowConfidence == 0 {
		cfg.Classify.LowConfidence = 0.4
	}

	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 500
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 50
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.CourseTopK == 0 {
		cfg.Retrieval.CourseTopK = 7
	}
	if cfg.Retrieval.CollectionName == "" {
		cfg.Retrieval.CollectionName = "faq_corpus"
	}
	if cfg.Retrieval.IndexPath == "" {
		cfg.Retrieval.IndexPath = filepath.Join(AdvisorbotPath(), "retrieval-index")
	}

	if cfg.Governance.Timezone == "" {
		cfg.Governance.Timezone = "Asia/Kolkata"
	}
	if cfg.Governance.EmailDailyMax == 0 {
		cfg.Governance.EmailDailyMax = 5
	}
	if cfg.Governance.TicketDailyMax == 0 {
		cfg.Governance.TicketDailyMax = 3
	}
	if cfg.Governance.DBPath == "" {
		cfg.Governance.DBPath = filepath.Join(AdvisorbotPath(), "governance.db")
	}

	if cfg.Dedup.TTL == 0 {
		cfg.Dedup.TTL = Duration(30 * time.Second)
	}
	if cfg.Dedup.BucketWidth == 0 {
		cfg.Dedup.BucketWidth = Duration(60 * time.Second)
	}
	if len(cfg.Dedup.BypassKeywords) == 0 {
		cfg.Dedup.BypassKeywords = []string{
			"retry", "resend", "send again", "try again",
			"once more", "one more time", "please send", "send it", "do it again",
		}
	}

	if cfg.Flow.InactivityTTL == 0 {
		cfg.Flow.InactivityTTL = Duration(30 * time.Minute)
	}
	if cfg.Flow.SweepInterval == 0 {
		cfg.Flow.SweepInterval = Duration(1 * time.Minute)
	}

	if cfg.EmailFlow.RegenerateTemperatureBump == 0 {
		cfg.EmailFlow.RegenerateTemperatureBump = 0.1
	}
	if cfg.EmailFlow.MinSubjectLength == 0 {
		cfg.EmailFlow.MinSubjectLength = 3
	}
	if cfg.EmailFlow.MinBodyLength == 0 {
		cfg.EmailFlow.MinBodyLength = 10
	}

	if len(cfg.TicketFlow.SensitiveKeywords) == 0 {
		cfg.TicketFlow.SensitiveKeywords = []string{
			"harassment", "assault", "threat", "suicide", "self-harm", "abuse", "discrimination",
		}
	}

	// Default MaxConcurrent for providers
	for name, p := range cfg.Models.Providers {
		if p.MaxConcurrent <= 0 {
			p.MaxConcurrent = 1
			cfg.Models.Providers[name] = p
		}
	}
	// Auth resolution is deferred to models.ResolveAuth() at model init time.
}
