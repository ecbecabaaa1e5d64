package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := validateSimulator(&cfg.Simulator); err != nil {
		return fmt.Errorf("simulator validation failed: %w", err)
	}
	if err := validateFormations(&cfg.Formations, &cfg.Storage); err != nil {
		return fmt.Errorf("formations validation failed: %w", err)
	}
	if err := cfg.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation validation failed: %w", err)
	}
	if err := validateSearch(&cfg.Search, cfg.Simulation.TimeSteps()); err != nil {
		return fmt.Errorf("search validation failed: %w", err)
	}
	if err := validateNotifications(&cfg.Notifications); err != nil {
		return fmt.Errorf("notifications validation failed: %w", err)
	}

	return nil
}

func validateServer(s *ServerConfig) error {
	if s.HTTPAddr == "" && s.GRPCAddr == "" {
		return fmt.Errorf("at least one of http_addr or grpc_addr must be set")
	}
	if s.StreamIntervalMs <= 0 {
		return fmt.Errorf("stream_interval_ms must be positive, got %d", s.StreamIntervalMs)
	}
	return nil
}

func validateSimulator(s *SimulatorConfig) error {
	switch s.Backend {
	case "synthetic":
	case "exec":
		if s.Command == "" {
			return fmt.Errorf("command is required for the exec backend")
		}
	default:
		return fmt.Errorf("invalid backend: %s (must be exec or synthetic)", s.Backend)
	}
	return nil
}

func validateFormations(f *FormationsConfig, st *StorageConfig) error {
	switch f.Source {
	case "csv":
		if f.Dir == "" {
			return fmt.Errorf("dir is required for the csv source")
		}
	case "sqlite":
		if st.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite source")
		}
	default:
		return fmt.Errorf("invalid source: %s (must be csv or sqlite)", f.Source)
	}
	if st.ArchiveResults && st.Path == "" {
		return fmt.Errorf("storage.path is required when archive_results is enabled")
	}
	return nil
}

// validateSearch checks the search parameters against the number of reported time steps
func validateSearch(s *SearchConfig, timeSteps int) error {
	if s.Horizon < 0 || s.Horizon >= timeSteps {
		return fmt.Errorf("horizon must be in [0, %d), got %d", timeSteps, s.Horizon)
	}
	if s.StepDistance <= 0 {
		return fmt.Errorf("step_distance must be positive, got %g", s.StepDistance)
	}
	if s.Greedy.Restarts <= 0 {
		return fmt.Errorf("greedy restarts must be positive, got %d", s.Greedy.Restarts)
	}
	if s.Greedy.MaxSteps <= 0 {
		return fmt.Errorf("greedy max_steps must be positive, got %d", s.Greedy.MaxSteps)
	}

	pg := s.PolicyGradient
	if pg.Iterations <= 0 {
		return fmt.Errorf("policy_gradient iterations must be positive, got %d", pg.Iterations)
	}
	if pg.EpisodesPerBatch <= 0 {
		return fmt.Errorf("policy_gradient episodes_per_batch must be positive, got %d", pg.EpisodesPerBatch)
	}
	if pg.MaxSteps <= 0 {
		return fmt.Errorf("policy_gradient max_steps must be positive, got %d", pg.MaxSteps)
	}
	if pg.Discount <= 0 || pg.Discount > 1 {
		return fmt.Errorf("policy_gradient discount must be in (0, 1], got %g", pg.Discount)
	}
	if pg.LearningRate <= 0 {
		return fmt.Errorf("policy_gradient learning_rate must be positive, got %g", pg.LearningRate)
	}
	if len(pg.Hidden) == 0 {
		return fmt.Errorf("policy_gradient hidden must name at least one layer")
	}
	for i, h := range pg.Hidden {
		if h <= 0 {
			return fmt.Errorf("policy_gradient hidden[%d] must be positive, got %d", i, h)
		}
	}
	return validateConvergence(&pg.Convergence)
}

func validateConvergence(c *ConvergenceConfig) error {
	switch c.Strategy {
	case "", "none":
		return nil
	case "no_improvement", "plateau", "combined":
	default:
		return fmt.Errorf("unknown convergence strategy %q", c.Strategy)
	}
	if c.MinIterations < 0 || c.NoImprovementIterations < 0 || c.PlateauIterations < 0 {
		return fmt.Errorf("convergence iteration counts cannot be negative")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("convergence tolerance cannot be negative, got %g", c.Tolerance)
	}
	return nil
}

func validateNotifications(n *NotificationsConfig) error {
	if n.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", n.MaxRetries)
	}
	validBackoffs := map[string]bool{
		"constant":             true,
		"exponential":          true,
		"exponential-nojitter": true,
	}
	if !validBackoffs[n.Backoff] {
		return fmt.Errorf("invalid backoff type: %s (must be constant or exponential)", n.Backoff)
	}
	if n.BaseMs < 0 {
		return fmt.Errorf("base_ms cannot be negative, got %d", n.BaseMs)
	}
	if n.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", n.TimeoutMs)
	}
	return nil
}
