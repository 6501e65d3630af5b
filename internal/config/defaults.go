package config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			PollIntervalMS: 500,
			MaxRetries:     3,
		},
		Retry: RetryConfig{
			InitialIntervalMS:   500,
			MaxIntervalMS:       30000,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeoutMS:       30000,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8320,
		},
		Storage: StorageConfig{},
	}
}
