package config

// OrchestratorConfig tunes the tick loop and retry policy.
type OrchestratorConfig struct {
	PollIntervalMS int `json:"poll_interval_ms"` // Tick fallback when no events arrive
	MaxRetries     int `json:"max_retries"`      // Transient retry budget per task
}

// RetryConfig shapes the exponential backoff between retries.
type RetryConfig struct {
	InitialIntervalMS   int     `json:"initial_interval_ms"`
	MaxIntervalMS       int     `json:"max_interval_ms"`
	Multiplier          float64 `json:"multiplier"`
	RandomizationFactor float64 `json:"randomization_factor"`
}

// BreakerConfig tunes the per-worker circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	OpenTimeoutMS       int    `json:"open_timeout_ms"`
}

// ServerConfig holds the HTTP API listen address.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StorageConfig locates the SQLite database. An empty path selects
// ~/.gantry/gantry.db.
type StorageConfig struct {
	Path string `json:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Retry        RetryConfig        `json:"retry"`
	Breaker      BreakerConfig      `json:"breaker"`
	Server       ServerConfig       `json:"server"`
	Storage      StorageConfig      `json:"storage"`
}
