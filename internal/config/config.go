package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/adpulse/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	AdsPlatform AdsPlatformConfig `yaml:"ads_platform"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Burnout     BurnoutConfig     `yaml:"burnout"`
	Mapping     MappingConfig     `yaml:"result_mapping"`
	Reports     ReportConfig      `yaml:"reports"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis connection settings for tenant-group backoff state.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// AdsPlatformConfig holds the external ads platform API settings.
type AdsPlatformConfig struct {
	BaseURL            string `yaml:"base_url"`
	APIVersion         string `yaml:"api_version"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	ReportPollSeconds  int    `yaml:"report_poll_seconds"`
	ReportPollAttempts int    `yaml:"report_poll_attempts"`
}

// Timeout returns the configured timeout as a duration.
func (c AdsPlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the report polling interval as a duration.
func (c AdsPlatformConfig) PollInterval() time.Duration {
	return time.Duration(c.ReportPollSeconds) * time.Second
}

// PipelineConfig holds scheduler/worker settings.
type PipelineConfig struct {
	Workers                 int `yaml:"workers"`
	InterAccountPauseSecs   int `yaml:"inter_account_pause_seconds"`
	GroupBackoffSecs        int `yaml:"group_backoff_seconds"`
	LookbackWeeks           int `yaml:"lookback_weeks"`
	DailyLookbackDays       int `yaml:"daily_lookback_days"`
	MaxStepAttempts         int `yaml:"max_step_attempts"`
	RetrySpacingSecs        int `yaml:"retry_spacing_seconds"`
	AccountLimit            int `yaml:"account_limit"`
	PauseCheckIntervalSecs  int `yaml:"pause_check_interval_seconds"`
}

// InterAccountPause returns the pause between accounts of one tenant group.
func (c PipelineConfig) InterAccountPause() time.Duration {
	return time.Duration(c.InterAccountPauseSecs) * time.Second
}

// GroupBackoff returns how long a rate-limited tenant group sits out.
func (c PipelineConfig) GroupBackoff() time.Duration {
	return time.Duration(c.GroupBackoffSecs) * time.Second
}

// RetrySpacing returns the base spacing between step retry attempts.
func (c PipelineConfig) RetrySpacing() time.Duration {
	return time.Duration(c.RetrySpacingSecs) * time.Second
}

// AnomalyConfig holds feature/anomaly computation settings.
type AnomalyConfig struct {
	BaselineWeeks     int     `yaml:"baseline_weeks"`
	CPRSpikeThreshold float64 `yaml:"cpr_spike_threshold"`

	// MinResults gates eligibility per result family (weekly result_count).
	MinResults map[domain.ResultFamily]float64 `yaml:"min_results"`

	// TriggerThresholds maps tracked metric -> significance threshold in
	// percent, evaluated in the metric's bad direction.
	TriggerThresholds map[string]float64 `yaml:"trigger_thresholds"`
}

// BurnoutConfig holds elasticity/forecast settings.
type BurnoutConfig struct {
	GrowthEventRatio   float64 `yaml:"growth_event_ratio"`
	MinAdEvents        int     `yaml:"min_ad_events"`
	MinAccountEvents   int     `yaml:"min_account_events"`
	MinGlobalEvents    int     `yaml:"min_global_events"`
	FallbackElasticity float64 `yaml:"fallback_elasticity"`
}

// MappingConfig is the data-driven conversion-action taxonomy: optimization
// goal -> candidate result families, raw action type -> result family.
// Taxonomy changes are config edits, not code changes.
type MappingConfig struct {
	Goals   map[string][]domain.ResultFamily  `yaml:"goals"`
	Actions map[string]domain.ResultFamily    `yaml:"actions"`
}

// ReportConfig holds job-report output settings.
type ReportConfig struct {
	OutputDir  string `yaml:"output_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c ReportConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// Load reads and parses the configuration file. A missing file is not an
// error; defaults plus env overrides are enough to run.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.AdsPlatform.TimeoutSeconds == 0 {
		cfg.AdsPlatform.TimeoutSeconds = 60
	}
	if cfg.AdsPlatform.APIVersion == "" {
		cfg.AdsPlatform.APIVersion = "v19.0"
	}
	if cfg.AdsPlatform.ReportPollSeconds == 0 {
		cfg.AdsPlatform.ReportPollSeconds = 2
	}
	if cfg.AdsPlatform.ReportPollAttempts == 0 {
		cfg.AdsPlatform.ReportPollAttempts = 15
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 5
	}
	if cfg.Pipeline.InterAccountPauseSecs == 0 {
		cfg.Pipeline.InterAccountPauseSecs = 10
	}
	if cfg.Pipeline.GroupBackoffSecs == 0 {
		cfg.Pipeline.GroupBackoffSecs = 300
	}
	if cfg.Pipeline.LookbackWeeks == 0 {
		cfg.Pipeline.LookbackWeeks = 12
	}
	if cfg.Pipeline.DailyLookbackDays == 0 {
		cfg.Pipeline.DailyLookbackDays = 14
	}
	if cfg.Pipeline.MaxStepAttempts == 0 {
		cfg.Pipeline.MaxStepAttempts = 3
	}
	if cfg.Pipeline.RetrySpacingSecs == 0 {
		cfg.Pipeline.RetrySpacingSecs = 5
	}
	if cfg.Anomaly.BaselineWeeks == 0 {
		cfg.Anomaly.BaselineWeeks = 4
	}
	if cfg.Anomaly.CPRSpikeThreshold == 0 {
		cfg.Anomaly.CPRSpikeThreshold = 1.20
	}
	if len(cfg.Anomaly.MinResults) == 0 {
		cfg.Anomaly.MinResults = DefaultMinResults()
	}
	if len(cfg.Anomaly.TriggerThresholds) == 0 {
		cfg.Anomaly.TriggerThresholds = DefaultTriggerThresholds()
	}
	if cfg.Burnout.GrowthEventRatio == 0 {
		cfg.Burnout.GrowthEventRatio = 1.15
	}
	if cfg.Burnout.MinAdEvents == 0 {
		cfg.Burnout.MinAdEvents = 3
	}
	if cfg.Burnout.MinAccountEvents == 0 {
		cfg.Burnout.MinAccountEvents = 10
	}
	if cfg.Burnout.MinGlobalEvents == 0 {
		cfg.Burnout.MinGlobalEvents = 30
	}
	if cfg.Burnout.FallbackElasticity == 0 {
		cfg.Burnout.FallbackElasticity = 0.15
	}
	if len(cfg.Mapping.Goals) == 0 {
		cfg.Mapping.Goals = DefaultGoalFamilies()
	}
	if len(cfg.Mapping.Actions) == 0 {
		cfg.Mapping.Actions = DefaultActionFamilies()
	}
	if cfg.Reports.OutputDir == "" {
		cfg.Reports.OutputDir = "reports"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if baseURL := os.Getenv("ADS_PLATFORM_BASE_URL"); baseURL != "" {
		cfg.AdsPlatform.BaseURL = baseURL
	}
	if v := os.Getenv("ADS_PLATFORM_API_VERSION"); v != "" {
		cfg.AdsPlatform.APIVersion = v
	}
	if v := os.Getenv("PIPELINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("REPORTS_S3_BUCKET"); v != "" {
		cfg.Reports.S3Bucket = v
	}
	if v := os.Getenv("REPORTS_S3_REGION"); v != "" {
		cfg.Reports.AWSRegion = v
	}

	return cfg, nil
}
