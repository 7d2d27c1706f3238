package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all svcguard settings. Everything is optional with
// defaults; values come from (highest precedence first) environment
// variables with the SVCGUARD_ prefix, an optional config file, and
// built-in defaults.
type Config struct {
	// Managed service
	ServiceName    string `mapstructure:"service_name"`
	InstallDir     string `mapstructure:"install_dir"`
	ConfigPath     string `mapstructure:"config_path"`
	ServicePort    int    `mapstructure:"service_port"`
	HealthEndpoint string `mapstructure:"health_endpoint"`
	ServiceLogPath string `mapstructure:"service_log_path"`
	StartCommand   string `mapstructure:"start_command"`

	// Auxiliary browser-like subprocess pool
	AuxProcessPattern string `mapstructure:"aux_process_pattern"`

	// Watchdog state
	StateDir string `mapstructure:"state_dir"`

	// Escalation
	FailThreshold  uint          `mapstructure:"fail_threshold"`
	RestartTimeout time.Duration `mapstructure:"restart_timeout"`
	ActionCooldown time.Duration `mapstructure:"action_cooldown"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`

	// Resource thresholds
	MemWarnPct       float64 `mapstructure:"mem_warn_pct"`
	MemCritPct       float64 `mapstructure:"mem_crit_pct"`
	DiskWarnPct      float64 `mapstructure:"disk_warn_pct"`
	DiskCritPct      float64 `mapstructure:"disk_crit_pct"`
	ServiceRSSWarnMB float64 `mapstructure:"service_rss_warn_mb"`
	ServiceRSSCritMB float64 `mapstructure:"service_rss_crit_mb"`
	AuxMemWarnMB     float64 `mapstructure:"aux_mem_warn_mb"`
	AuxMemCritMB     float64 `mapstructure:"aux_mem_crit_mb"`

	// Metrics retention
	MetricsMaxLines int `mapstructure:"metrics_max_lines"`

	// Alerting
	AlertsEnabled     bool          `mapstructure:"alerts_enabled"`
	AlertWebhookURL   string        `mapstructure:"alert_webhook_url"`
	AlertCooldown     time.Duration `mapstructure:"alert_cooldown"`
	AlertWarnCooldown time.Duration `mapstructure:"alert_warn_cooldown"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from env, optional .env file, and an optional
// config file path ("" means no file). Missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	// .env in the working directory, if present
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SVCGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind the keys that carry no default; AutomaticEnv only resolves
	// keys viper already knows about.
	v.BindEnv("config_path", "SVCGUARD_CONFIG_PATH")
	v.BindEnv("service_log_path", "SVCGUARD_SERVICE_LOG_PATH")
	v.BindEnv("state_dir", "SVCGUARD_STATE_DIR")
	v.BindEnv("alert_webhook_url", "SVCGUARD_ALERT_WEBHOOK_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".svcguard"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			// Missing default config file is fine
			_ = v.ReadInConfig()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".svcguard", "state")
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(cfg.InstallDir, "config.json")
	}
	if cfg.ServiceLogPath == "" {
		cfg.ServiceLogPath = filepath.Join(cfg.InstallDir, "logs", cfg.ServiceName+".log")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "assistant")
	v.SetDefault("install_dir", "/opt/assistant")
	v.SetDefault("service_port", 3000)
	v.SetDefault("health_endpoint", "/health")
	v.SetDefault("aux_process_pattern", "chromium|chrome|puppeteer")
	v.SetDefault("start_command", "npm start")

	v.SetDefault("fail_threshold", 3)
	v.SetDefault("restart_timeout", 60*time.Second)
	v.SetDefault("action_cooldown", 300*time.Second)
	v.SetDefault("check_interval", 60*time.Second)

	v.SetDefault("mem_warn_pct", 80.0)
	v.SetDefault("mem_crit_pct", 90.0)
	v.SetDefault("disk_warn_pct", 80.0)
	v.SetDefault("disk_crit_pct", 90.0)
	v.SetDefault("service_rss_warn_mb", 1024.0)
	v.SetDefault("service_rss_crit_mb", 2048.0)
	v.SetDefault("aux_mem_warn_mb", 1536.0)
	v.SetDefault("aux_mem_crit_mb", 3072.0)

	v.SetDefault("metrics_max_lines", 1440)

	v.SetDefault("alerts_enabled", false)
	v.SetDefault("alert_cooldown", 300*time.Second)
	v.SetDefault("alert_warn_cooldown", 1800*time.Second)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// SnapshotDir returns the directory holding snapshot captures
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.StateDir, "snapshots")
}

// ServiceURL returns the base URL of the managed service
func (c *Config) ServiceURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.ServicePort)
}
