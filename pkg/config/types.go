package config

import (
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
)

// Config is the daemon configuration
type Config struct {
	LogLevel      string                      `yaml:"log_level"`
	LogFormat     string                      `yaml:"log_format"` // json or text
	Server        ServerConfig                `yaml:"server"`
	Simulator     SimulatorConfig             `yaml:"simulator"`
	Formations    FormationsConfig            `yaml:"formations"`
	Storage       StorageConfig               `yaml:"storage"`
	Simulation    models.SimulationParameters `yaml:"simulation"`
	Search        SearchConfig                `yaml:"search"`
	Notifications NotificationsConfig         `yaml:"notifications"`
}

// ServerConfig holds the listen addresses of the external APIs
type ServerConfig struct {
	HTTPAddr         string `yaml:"http_addr"`
	GRPCAddr         string `yaml:"grpc_addr"`
	StreamIntervalMs int    `yaml:"stream_interval_ms"`
}

// StreamInterval returns the snapshot poll interval of the push stream
func (s ServerConfig) StreamInterval() time.Duration {
	return time.Duration(s.StreamIntervalMs) * time.Millisecond
}

// SimulatorConfig selects and configures the simulation backend
type SimulatorConfig struct {
	Backend string   `yaml:"backend"` // exec or synthetic
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	// Seed of the synthetic backend's noise field
	Seed int64 `yaml:"seed"`
	// GuardDomain rejects locations outside the formation before calling the backend
	GuardDomain bool `yaml:"guard_domain"`
}

// FormationsConfig says where formation meshes are read from
type FormationsConfig struct {
	Source string `yaml:"source"` // csv or sqlite
	Dir    string `yaml:"dir"`
}

// StorageConfig configures the SQLite store
type StorageConfig struct {
	Path           string `yaml:"path"`
	ArchiveResults bool   `yaml:"archive_results"`
}

// SearchConfig holds the parameters shared by both search kinds
type SearchConfig struct {
	Horizon        int                  `yaml:"horizon"`
	StepDistance   float64              `yaml:"step_distance"` // meters
	Seed           int64                `yaml:"seed"`
	Greedy         GreedyConfig         `yaml:"greedy"`
	PolicyGradient PolicyGradientConfig `yaml:"policy_gradient"`
}

// GreedyConfig configures the greedy local search
type GreedyConfig struct {
	Restarts int `yaml:"restarts"`
	MaxSteps int `yaml:"max_steps"`
}

// PolicyGradientConfig configures the REINFORCE learner
type PolicyGradientConfig struct {
	Iterations       int     `yaml:"iterations"`
	EpisodesPerBatch int     `yaml:"episodes_per_batch"`
	MaxSteps         int     `yaml:"max_steps"`
	Discount         float64 `yaml:"discount"`
	LearningRate     float64 `yaml:"learning_rate"`
	Hidden           []int   `yaml:"hidden"`
	CheckpointPath   string  `yaml:"checkpoint_path,omitempty"`
	// Convergence enables early stopping; an empty strategy runs every iteration
	Convergence ConvergenceConfig `yaml:"convergence"`
}

// ConvergenceConfig configures early stopping of the learner
type ConvergenceConfig struct {
	Strategy                string  `yaml:"strategy"` // none, no_improvement, plateau or combined
	MinIterations           int     `yaml:"min_iterations"`
	NoImprovementIterations int     `yaml:"no_improvement_iterations"`
	PlateauIterations       int     `yaml:"plateau_iterations"`
	Tolerance               float64 `yaml:"tolerance"` // Mt
}

// NotificationsConfig configures the run completion callback
type NotificationsConfig struct {
	CallbackURL string `yaml:"callback_url,omitempty"`
	MaxRetries  int    `yaml:"max_retries"`
	Backoff     string `yaml:"backoff"` // constant or exponential
	BaseMs      int    `yaml:"base_ms"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// DefaultConfig returns the reference configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: ServerConfig{
			HTTPAddr:         ":8080",
			GRPCAddr:         ":50051",
			StreamIntervalMs: 3000,
		},
		Simulator: SimulatorConfig{
			Backend:     "synthetic",
			Seed:        1,
			GuardDomain: true,
		},
		Formations: FormationsConfig{
			Source: "csv",
			Dir:    "data/formations",
		},
		Storage: StorageConfig{
			Path: "co2sim.db",
		},
		Simulation: models.DefaultSimulationParameters(),
		Search: SearchConfig{
			Horizon:      10,
			StepDistance: 2000,
			Greedy: GreedyConfig{
				Restarts: 5,
				MaxSteps: 5,
			},
			PolicyGradient: PolicyGradientConfig{
				Iterations:       30,
				EpisodesPerBatch: 10,
				MaxSteps:         10,
				Discount:         0.99,
				LearningRate:     0.005,
				Hidden:           []int{35, 35},
				Convergence: ConvergenceConfig{
					Strategy:                "none",
					MinIterations:           5,
					NoImprovementIterations: 8,
					PlateauIterations:       5,
					Tolerance:               1,
				},
			},
		},
		Notifications: NotificationsConfig{
			MaxRetries: 3,
			Backoff:    "exponential",
			BaseMs:     200,
			TimeoutMs:  5000,
		},
	}
}
