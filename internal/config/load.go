package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values. Returns a populated Config or an error
// if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("scheduler.cpu_workers", 3)
	v.SetDefault("scheduler.gpu_workers", 1)
	v.SetDefault("scheduler.max_backlog", 15)
	v.SetDefault("scheduler.tick_interval", "1s")
	v.SetDefault("scheduler.stale_age", "2h")
	v.SetDefault("scheduler.clean_interval", "1m")
	v.SetDefault("scheduler.admit_all", false)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else is a real problem.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Configure environment variables
	v.SetEnvPrefix("ANNOQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables so they are visible to
	// Unmarshal even when neither a default nor a file value exists.
	bindEnvs := []struct {
		key    string
		envVar string
	}{
		{"server.port", "ANNOQ_SERVER_PORT"},
		{"server.log_level", "ANNOQ_SERVER_LOG_LEVEL"},
		{"scheduler.cpu_workers", "ANNOQ_SCHEDULER_CPU_WORKERS"},
		{"scheduler.gpu_workers", "ANNOQ_SCHEDULER_GPU_WORKERS"},
		{"scheduler.max_backlog", "ANNOQ_SCHEDULER_MAX_BACKLOG"},
		{"scheduler.tick_interval", "ANNOQ_SCHEDULER_TICK_INTERVAL"},
		{"scheduler.stale_age", "ANNOQ_SCHEDULER_STALE_AGE"},
		{"scheduler.clean_interval", "ANNOQ_SCHEDULER_CLEAN_INTERVAL"},
		{"scheduler.admit_all", "ANNOQ_SCHEDULER_ADMIT_ALL"},
	}
	for _, env := range bindEnvs {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	// Unmarshal and validate
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
