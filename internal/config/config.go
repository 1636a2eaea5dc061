package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

// ServerConfig contains the process-level settings: the port the
// metrics endpoint listens on and the log level.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// SchedulerConfig contains the task scheduler settings.
type SchedulerConfig struct {
	// CPUWorkers is the concurrency ceiling for cpu-class tasks.
	CPUWorkers int `mapstructure:"cpu_workers" validate:"required,gt=0"`

	// GPUWorkers is the concurrency ceiling for gpu-class tasks.
	GPUWorkers int `mapstructure:"gpu_workers" validate:"required,gt=0"`

	// MaxBacklog caps the number of tracked entries, pending plus running.
	MaxBacklog int `mapstructure:"max_backlog" validate:"required,gt=0"`

	// TickInterval is the admission loop period.
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"required"`

	// StaleAge is the age beyond which entries are reclaimed from
	// bookkeeping, whatever their state.
	StaleAge time.Duration `mapstructure:"stale_age" validate:"required"`

	// CleanInterval is how often the maintenance loop runs the
	// age-based reclamation.
	CleanInterval time.Duration `mapstructure:"clean_interval" validate:"required"`

	// AdmitAll admits every eligible entry per tick instead of one per
	// class per tick.
	AdmitAll bool `mapstructure:"admit_all"`
}
