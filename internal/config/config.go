package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the detection engine recognizes. It is built
// once at startup and passed to component constructors; nothing mutates it
// afterward.
type Config struct {
	// Detection thresholds.
	FailedLoginThreshold    int `yaml:"failed_login_threshold"`
	FailedLoginWindowMin    int `yaml:"failed_login_window_minutes"`
	FPSuccessThreshold      int `yaml:"fp_success_threshold"`
	AccountIPThreshold      int `yaml:"account_ip_threshold"`
	PortScanThreshold       int `yaml:"port_scan_threshold"`
	PortScanWindowMin       int `yaml:"port_scan_window_minutes"`
	AlertDedupWindowMin     int `yaml:"alert_dedup_window_minutes"`

	// Risk weights.
	WeightFailedAuth  int `yaml:"weight_failed_auth"`
	WeightPortScan    int `yaml:"weight_port_scan"`
	WeightGeoRisk     int `yaml:"weight_geo_risk"`
	WeightThreatIntel int `yaml:"weight_threat_intel"`
	WeightTorExit     int `yaml:"weight_tor_exit"`

	// Anomaly scoring.
	AnomalyThreshold float64 `yaml:"anomaly_threshold"`

	// Feature toggles.
	EnableFPReduction       bool `yaml:"enable_fp_reduction"`
	EnableAlertDedup        bool `yaml:"enable_alert_deduplication"`
	EnableAnomalyDetection  bool `yaml:"enable_ml_anomaly_detection"`
	EnableLiveThreatIntel   bool `yaml:"enable_live_threat_intel"`

	// DedupPolicy selects what survives when repeated alerts for the same
	// (threat_type, entity) fall inside the dedup window: "keep-first"
	// (documented default) or "keep-highest-severity".
	DedupPolicy string `yaml:"dedup_policy"`

	// GeoRiskCountries are ISO country codes treated as high risk.
	GeoRiskCountries []string `yaml:"geo_risk_countries"`

	// Cognitive modulation thresholds.
	BreachPressureThreshold float64 `yaml:"breach_pressure_threshold"`
	PainBiasThreshold       float64 `yaml:"pain_bias_threshold"`

	// Worker pool size for per-entity correlation. 1 disables parallelism.
	CorrelationWorkers int `yaml:"correlation_workers"`

	// Live threat intel providers.
	AbuseIPDBKey       string        `yaml:"abuseipdb_api_key"`
	VirusTotalKey      string        `yaml:"virustotal_api_key"`
	IntelTimeout       time.Duration `yaml:"intel_timeout"`
	IntelCacheTTL      time.Duration `yaml:"intel_cache_ttl"`

	// Sinks.
	HTTPAddr    string `yaml:"http_addr"`
	NATSURL     string `yaml:"nats_url"`
	PostgresDSN string `yaml:"postgres_dsn"`
	MaxAlerts   int    `yaml:"max_alerts"`
	DedupeCap   int    `yaml:"dedupe_cap"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() *Config {
	return &Config{
		FailedLoginThreshold: 5,
		FailedLoginWindowMin: 5,
		FPSuccessThreshold:   3,
		AccountIPThreshold:   4,
		PortScanThreshold:    15,
		PortScanWindowMin:    10,
		AlertDedupWindowMin:  60,

		WeightFailedAuth:  6,
		WeightPortScan:    4,
		WeightGeoRisk:     20,
		WeightThreatIntel: 30,
		WeightTorExit:     25,

		AnomalyThreshold: 0.75,

		EnableFPReduction:      true,
		EnableAlertDedup:       true,
		EnableAnomalyDetection: true,
		EnableLiveThreatIntel:  false,

		DedupPolicy: DedupKeepFirst,

		GeoRiskCountries: []string{"RU", "CN", "KP", "IR", "SY", "AF", "IQ", "BY", "VE"},

		BreachPressureThreshold: 0.6,
		PainBiasThreshold:       0.3,

		CorrelationWorkers: 4,

		IntelTimeout:  10 * time.Second,
		IntelCacheTTL: 24 * time.Hour,

		HTTPAddr:  ":8080",
		MaxAlerts: 10000,
		DedupeCap: 100000,
	}
}

// Dedup policies.
const (
	DedupKeepFirst           = "keep-first"
	DedupKeepHighestSeverity = "keep-highest-severity"
)

// FailedLoginWindow returns the brute-force lookback window as a duration.
func (c *Config) FailedLoginWindow() time.Duration {
	return time.Duration(c.FailedLoginWindowMin) * time.Minute
}

// PortScanWindow returns the port-scan lookback window as a duration.
func (c *Config) PortScanWindow() time.Duration {
	return time.Duration(c.PortScanWindowMin) * time.Minute
}

// AlertDedupWindow returns the dedup window as a duration.
func (c *Config) AlertDedupWindow() time.Duration {
	return time.Duration(c.AlertDedupWindowMin) * time.Minute
}

// IsGeoRisk reports whether the country code is in the high-risk set.
func (c *Config) IsGeoRisk(country string) bool {
	for _, cc := range c.GeoRiskCountries {
		if strings.EqualFold(cc, country) {
			return true
		}
	}
	return false
}

// Validate checks the invariants the engine depends on.
func (c *Config) Validate() error {
	if c.FailedLoginThreshold <= 0 {
		return fmt.Errorf("failed_login_threshold must be positive, got %d", c.FailedLoginThreshold)
	}
	if c.CorrelationWorkers <= 0 {
		return fmt.Errorf("correlation_workers must be positive, got %d", c.CorrelationWorkers)
	}
	if c.FailedLoginWindowMin < 0 || c.PortScanWindowMin < 0 || c.AlertDedupWindowMin < 0 {
		return fmt.Errorf("window minutes must not be negative")
	}
	if c.DedupPolicy != DedupKeepFirst && c.DedupPolicy != DedupKeepHighestSeverity {
		return fmt.Errorf("unknown dedup_policy %q", c.DedupPolicy)
	}
	if c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1 {
		return fmt.Errorf("anomaly_threshold must be in [0,1], got %v", c.AnomalyThreshold)
	}
	return nil
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays SENTINEL_* environment variables onto the config.
func (c *Config) applyEnv() {
	c.FailedLoginThreshold = getEnvInt("SENTINEL_FAILED_LOGIN_THRESHOLD", c.FailedLoginThreshold)
	c.FailedLoginWindowMin = getEnvInt("SENTINEL_FAILED_LOGIN_WINDOW_MIN", c.FailedLoginWindowMin)
	c.FPSuccessThreshold = getEnvInt("SENTINEL_FP_SUCCESS_THRESHOLD", c.FPSuccessThreshold)
	c.AccountIPThreshold = getEnvInt("SENTINEL_ACCOUNT_IP_THRESHOLD", c.AccountIPThreshold)
	c.PortScanThreshold = getEnvInt("SENTINEL_PORT_SCAN_THRESHOLD", c.PortScanThreshold)
	c.AlertDedupWindowMin = getEnvInt("SENTINEL_ALERT_DEDUP_WINDOW_MIN", c.AlertDedupWindowMin)
	c.CorrelationWorkers = getEnvInt("SENTINEL_CORRELATION_WORKERS", c.CorrelationWorkers)

	c.EnableFPReduction = getEnvBool("SENTINEL_ENABLE_FP_REDUCTION", c.EnableFPReduction)
	c.EnableAlertDedup = getEnvBool("SENTINEL_ENABLE_ALERT_DEDUP", c.EnableAlertDedup)
	c.EnableAnomalyDetection = getEnvBool("SENTINEL_ENABLE_ML_ANOMALY", c.EnableAnomalyDetection)
	c.EnableLiveThreatIntel = getEnvBool("SENTINEL_ENABLE_LIVE_INTEL", c.EnableLiveThreatIntel)

	c.DedupPolicy = getEnv("SENTINEL_DEDUP_POLICY", c.DedupPolicy)
	c.HTTPAddr = getEnv("SENTINEL_HTTP_ADDR", c.HTTPAddr)
	c.NATSURL = getEnv("SENTINEL_NATS_URL", c.NATSURL)
	c.PostgresDSN = getEnv("SENTINEL_POSTGRES_DSN", c.PostgresDSN)
	c.AbuseIPDBKey = getEnv("SENTINEL_ABUSEIPDB_API_KEY", c.AbuseIPDBKey)
	c.VirusTotalKey = getEnv("SENTINEL_VIRUSTOTAL_API_KEY", c.VirusTotalKey)
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}
