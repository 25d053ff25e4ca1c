package config

import "time"

// Config is the root configuration for advisorbot.
type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	Models     ModelsConfig     `json:"models"`
	Events     EventsConfig     `json:"events"`
	Classify   ClassifyConfig   `json:"classify"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Governance GovernanceConfig `json:"governance"`
	Dedup      DedupConfig      `json:"dedup"`
	Flow       FlowConfig       `json:"flow"`
	EmailFlow  EmailFlowConfig  `json:"email_flow"`
	TicketFlow TicketFlowConfig `json:"ticket_flow"`
	Embedding  EmbeddingConfig  `json:"embedding"`
}

// GatewayConfig holds the HTTP gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver        string         `json:"driver"` // "anthropic" | "openai" | "ollama" | "mistral"
	Model         string         `json:"model"`
	BaseURL       string         `json:"base_url,omitempty"`
	Auth          AuthConfig     `json:"auth"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	ContextWindow int            `json:"context_window,omitempty"`
	MaxConcurrent int            `json:"max_concurrent,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	Timeout       Duration       `json:"timeout,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // literal key or ${{ .Env.VAR }} template
	Token  string `json:"token,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"`
}

// ClassifyConfig configures the intent classifier (C6).
type ClassifyConfig struct {
	Provider            string  `json:"provider"`              // key into Models.Providers
	HighConfidence       float64 `json:"high_confidence"`       // >= : auto-route (default 0.7)
	LowConfidence        float64 `json:"low_confidence"`        // <  : clarify (default 0.4)
	EmailRegexFallback   *bool   `json:"email_regex_fallback"`  // default true
}

// IsEmailRegexFallbackEnabled reports whether the regex fallback extractor runs (default true).
func (c ClassifyConfig) IsEmailRegexFallbackEnabled() bool {
	if c.EmailRegexFallback == nil {
		return true
	}
	return *c.EmailRegexFallback
}

// RetrievalConfig configures the corpus retrieval engine (C3).
type RetrievalConfig struct {
	CorpusDirs    []string `json:"corpus_dirs"`
	IndexPath     string   `json:"index_path"`
	CollectionName string  `json:"collection_name"`
	ChunkSize     int      `json:"chunk_size"`     // default 500
	ChunkOverlap  int      `json:"chunk_overlap"`  // default 50
	TopK          int      `json:"top_k"`          // default 5
	CourseTopK    int      `json:"course_top_k"`   // default 7; FAQ override for course/program queries
	MinScore      float64  `json:"min_score"`      // default 0.0 (no floor)
}

// GovernanceConfig configures the per-user daily quota store (C4).
type GovernanceConfig struct {
	DBPath        string `json:"db_path"`
	Timezone      string `json:"timezone"`       // IANA zone, default "Asia/Kolkata"
	EmailDailyMax int    `json:"email_daily_max"` // default 5
	TicketDailyMax int   `json:"ticket_daily_max"` // default 3
}

// DedupConfig configures the response deduplication cache (C5).
type DedupConfig struct {
	TTL              Duration `json:"ttl"`                // default 30s
	BucketWidth      Duration `json:"bucket_width"`        // default 60s
	BypassKeywords   []string `json:"bypass_keywords,omitempty"`
}

// FlowConfig configures the flow-pause store (C1).
type FlowConfig struct {
	InactivityTTL Duration `json:"inactivity_ttl"` // default 30m
	SweepInterval Duration `json:"sweep_interval"` // default 1m
	PersistDir    string   `json:"persist_dir,omitempty"`
}

// EmailFlowConfig configures the email drafting flow (part of C7).
type EmailFlowConfig struct {
	RegenerateTemperatureBump float64 `json:"regenerate_temperature_bump"` // default 0.1
	MinSubjectLength          int     `json:"min_subject_length"`          // default 3
	MinBodyLength             int     `json:"min_body_length"`             // default 10
}

// TicketFlowConfig configures the ticket creation flow (part of C7).
type TicketFlowConfig struct {
	SensitiveKeywords []string `json:"sensitive_keywords,omitempty"`
}

// EmbeddingConfig configures the embedding model used by retrieval.
type EmbeddingConfig struct {
	Enabled   *bool      `json:"enabled"`
	Driver    string     `json:"driver"` // "openai" | "ollama"
	Model     string     `json:"model"`
	BaseURL   string     `json:"base_url,omitempty"`
	Dims      int        `json:"dims,omitempty"`
	Auth      AuthConfig `json:"auth,omitempty"`
}

// IsEnabled returns true if embeddings are enabled (default: false).
func (c EmbeddingConfig) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
