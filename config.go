package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "BULKSENDER_"

// intervalUnset marks an interval absent from both file and environment, so
// an explicit 0 (no pause) survives defaulting.
const intervalUnset = math.MinInt

type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Files   FilesConfig   `yaml:"files"`
	Phone   PhoneConfig   `yaml:"phone"`
	Sending SendingConfig `yaml:"sending"`
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Logging LoggingConfig `yaml:"logging"`
}

type BrowserConfig struct {
	Headless              bool   `yaml:"headless"`
	UserDataDir           string `yaml:"user_data_dir"`
	ChromePath            string `yaml:"chrome_path"`
	QRTimeoutSeconds      int    `yaml:"qr_timeout_seconds"`
	PageLoadTimeout       int    `yaml:"page_load_timeout"`
	ElementTimeoutSeconds int    `yaml:"element_timeout_seconds"`
}

type FilesConfig struct {
	ContactsPath     string `yaml:"contacts_path"`
	TemplatePath     string `yaml:"template_path"`
	AttachmentPath   string `yaml:"attachment_path"`
	CompletedCSVPath string `yaml:"completed_csv_path"`
	ReportDir        string `yaml:"report_dir"`
}

type PhoneConfig struct {
	CountryCode  string `yaml:"country_code"`
	MobilePrefix string `yaml:"mobile_prefix"`
	FallbackName string `yaml:"fallback_name"`
}

type SendingConfig struct {
	IntervalSeconds    int     `yaml:"interval_seconds"`
	SkipCompleted      bool    `yaml:"skip_completed"`
	SuccessProbability float64 `yaml:"success_probability"`
	SimulatedLatencyMs int     `yaml:"simulated_latency_ms"`
	Seed               int64   `yaml:"seed"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// LoadConfig reads the YAML file at configPath, applies BULKSENDER_* environment
// overrides and fills in defaults. A missing file is not an error: the tool can
// run from defaults and environment alone.
func LoadConfig(configPath string) (*Config, error) {
	config := Config{Sending: SendingConfig{IntervalSeconds: intervalUnset}}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	if err := applyDefaults(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(config *Config) error {
	var errs []error

	if v := getEnv("SERVER_ADDRESS", ""); v != "" {
		config.Server.Address = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		config.Redis.Addr = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		config.Redis.Password = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		config.Logging.Level = v
	}
	if v := getEnv("PHONE_COUNTRY_CODE", ""); v != "" {
		config.Phone.CountryCode = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &config.Redis.DB},
		{"INTERVAL_SECONDS", &config.Sending.IntervalSeconds},
	}
	for _, e := range ints {
		v, err := getEnvInt(e.key, *e.dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*e.dst = v
	}

	if v := getEnv("HEADLESS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid bool for env %sHEADLESS: %s", envPrefix, v))
		} else {
			config.Browser.Headless = b
		}
	}

	return errors.Join(errs...)
}

func applyDefaults(config *Config) error {
	if config.Browser.UserDataDir == "" {
		config.Browser.UserDataDir = "./chrome-data"
	}

	absPath, err := filepath.Abs(config.Browser.UserDataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve user data directory path: %w", err)
	}
	config.Browser.UserDataDir = absPath

	if config.Browser.ChromePath == "" {
		config.Browser.ChromePath = findChromePath()
	}
	if config.Browser.QRTimeoutSeconds == 0 {
		config.Browser.QRTimeoutSeconds = 60
	}
	if config.Browser.PageLoadTimeout == 0 {
		config.Browser.PageLoadTimeout = 30
	}
	if config.Browser.ElementTimeoutSeconds == 0 {
		config.Browser.ElementTimeoutSeconds = 15
	}

	if config.Files.ReportDir == "" {
		config.Files.ReportDir = "."
	}

	if config.Phone.CountryCode == "" {
		config.Phone.CountryCode = DefaultPhonePolicy.CountryCode
	}
	if config.Phone.MobilePrefix == "" {
		config.Phone.MobilePrefix = DefaultPhonePolicy.MobilePrefix
	}
	if config.Phone.FallbackName == "" {
		config.Phone.FallbackName = DefaultFallbackName
	}

	if config.Sending.IntervalSeconds == intervalUnset {
		config.Sending.IntervalSeconds = 5
	}
	if config.Sending.SuccessProbability == 0 {
		config.Sending.SuccessProbability = DefaultSuccessProbability
	}
	if config.Sending.SimulatedLatencyMs == 0 {
		config.Sending.SimulatedLatencyMs = 500
	}

	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Redis.TTLSeconds == 0 {
		config.Redis.TTLSeconds = 86400
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "console"
	}

	return nil
}

func validateConfig(config *Config) error {
	var errs []error

	if config.Sending.IntervalSeconds < 0 {
		errs = append(errs, errors.New("sending.interval_seconds must be >= 0"))
	}
	if p := config.Sending.SuccessProbability; p < 0 || p > 1 {
		errs = append(errs, errors.New("sending.success_probability must be within [0,1]"))
	}
	if config.Sending.SimulatedLatencyMs < 0 {
		errs = append(errs, errors.New("sending.simulated_latency_ms must be >= 0"))
	}

	policy := PhonePolicy{
		CountryCode:  config.Phone.CountryCode,
		MobilePrefix: config.Phone.MobilePrefix,
	}
	if err := policy.Check(); err != nil {
		errs = append(errs, fmt.Errorf("phone: %w", err))
	}

	if config.Sending.SkipCompleted && config.Files.CompletedCSVPath == "" {
		errs = append(errs, errors.New("sending.skip_completed requires files.completed_csv_path"))
	}

	switch strings.ToLower(config.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", config.Logging.Format))
	}

	return errors.Join(errs...)
}

// PhonePolicy returns the normalization policy described by the phone section.
func (c *Config) PhonePolicy() PhonePolicy {
	return PhonePolicy{
		CountryCode:  c.Phone.CountryCode,
		MobilePrefix: c.Phone.MobilePrefix,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s%s: %s", envPrefix, key, v)
	}
	return i, nil
}

// findChromePath attempts to locate Chrome executable on the system
func findChromePath() string {
	if runtime.GOOS == "windows" {
		paths := []string{
			"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
			"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
			os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		}

		for _, path := range paths {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	// Empty means chromedp picks its default lookup
	return ""
}
