package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type SchedulerConfig struct {
	// PollSpec is a cron expression or @every duration for the due-intent
	// poll cycle.
	PollSpec string `mapstructure:"poll_spec"`
}

type EmailConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	From             string        `mapstructure:"from"`
	SMTPHost         string        `mapstructure:"smtp_host"`
	SMTPPort         int           `mapstructure:"smtp_port"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	RatePerSec       float64       `mapstructure:"rate_per_sec"`
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
}

type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	ServerPort  string `mapstructure:"server_port"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	// BaseURL is the externally reachable address used to build tracking
	// links embedded in emails.
	BaseURL string `mapstructure:"base_url"`
	// FallbackURL is where the click-tracking redirect sends users when
	// the tracked delivery cannot be found.
	FallbackURL string          `mapstructure:"fallback_url"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Email       EmailConfig     `mapstructure:"email"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:" + config.ServerPort
	}
	if config.FallbackURL == "" {
		config.FallbackURL = config.BaseURL
	}
	if config.Scheduler.PollSpec == "" {
		config.Scheduler.PollSpec = "@every 1m"
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.RatePerSec == 0 {
		// Roughly one enqueue every 300ms.
		config.Email.RatePerSec = 3
	}
	if config.Email.DispatchInterval == 0 {
		config.Email.DispatchInterval = 5 * time.Second
	}

	return &config
}
