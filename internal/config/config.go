package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/godhahn/data-project/internal/common"
	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/noaa"
)

// Storage backends.
const (
	BackendS3     = "s3"
	BackendFile   = "file"
	BackendMemory = "memory"
)

var validate = validator.New()

// AppConfig is the settings of one process. It is built once by Load and not
// modified afterwards.
type AppConfig struct {
	APIToken           string        `yaml:"api_token" validate:"required"`
	BaseURL            string        `yaml:"base_url" validate:"required,url"`
	RequestDelay       time.Duration `yaml:"request_delay" validate:"gte=0"`
	HTTPTimeout        time.Duration `yaml:"http_timeout" validate:"gt=0"`
	PageSize           int           `yaml:"page_size" validate:"gte=1,lte=1000"`
	PaginationMode     string        `yaml:"pagination_mode" validate:"oneof=short-page result-count"`
	// BreakerMaxFailures trips the circuit after that many consecutive failed
	// requests; 0 never trips it.
	BreakerMaxFailures int `yaml:"breaker_max_failures" validate:"gte=0"`

	LocationID  string   `yaml:"location_id" validate:"required"`
	DatatypeIDs []string `yaml:"datatype_ids" validate:"required,min=1,dive,required"`
	DatasetID   string   `yaml:"dataset_id" validate:"required"`
	Units       string   `yaml:"units" validate:"oneof=metric standard"`
	StartDate   string   `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	// EndDate empty means the run date.
	EndDate string `yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`

	StorageBackend string `yaml:"storage_backend" validate:"oneof=s3 file memory"`
	S3Bucket       string `yaml:"s3_bucket" validate:"required_if=StorageBackend s3"`
	KeyPrefix      string `yaml:"key_prefix"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint" validate:"omitempty,url"`
	S3PathStyle    bool   `yaml:"s3_path_style"`
	OutputDir      string `yaml:"output_dir" validate:"required_if=StorageBackend file"`
	// Static S3 credentials; empty means the SDK default chain.
	S3AccessKeyID     string `yaml:"s3_access_key_id" validate:"required_with=S3SecretAccessKey"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key" validate:"required_with=S3AccessKeyID"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`

	HistoryDSN     string        `yaml:"history_dsn"`
	HistoryMaxRuns int           `yaml:"history_max_runs" validate:"gte=0"`
	HistoryMaxAge  time.Duration `yaml:"history_max_age" validate:"gte=0"`

	Schedule         string        `yaml:"schedule"`
	ScheduleInterval time.Duration `yaml:"schedule_interval" validate:"gte=0"`
	Port             string        `yaml:"port" validate:"required,numeric"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() AppConfig {
	return AppConfig{
		BaseURL:            noaa.DefaultBaseURL,
		RequestDelay:       500 * time.Millisecond,
		HTTPTimeout:        30 * time.Second,
		PageSize:           noaa.MaxPageSize,
		PaginationMode:     string(noaa.TerminateOnShortPage),
		BreakerMaxFailures: 0,
		LocationID:         "CITY:SN000001",
		DatatypeIDs:        []string{"TAVG", "TMAX", "TMIN", "HPCP", "PRCP", "AWND", "ALL"},
		DatasetID:          "GHCND",
		Units:              "metric",
		StartDate:          "2020-01-01",
		StorageBackend:     BackendS3,
		S3Bucket:           "pyh-data-project-bucket",
		KeyPrefix:          "raw_weather/",
		OutputDir:          "./out",
		LogLevel:           "info",
		LogFormat:          "text",
		HistoryMaxRuns:     50,
		ScheduleInterval:   24 * time.Hour,
		Port:               "8080",
	}
}

// Load reads configuration from .env, an optional YAML file named by CONFIG_FILE and
// the environment, in increasing order of precedence.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found or error loading it", "error", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	cfg.APIToken = getenvDefault("NOAA_API_TOKEN", cfg.APIToken)
	cfg.BaseURL = getenvDefault("NOAA_BASE_URL", cfg.BaseURL)
	cfg.PaginationMode = getenvDefault("PAGINATION_MODE", cfg.PaginationMode)
	cfg.LocationID = getenvDefault("LOCATION_ID", cfg.LocationID)
	cfg.DatasetID = getenvDefault("DATASET_ID", cfg.DatasetID)
	cfg.Units = getenvDefault("UNITS", cfg.Units)
	cfg.StartDate = getenvDefault("START_DATE", cfg.StartDate)
	cfg.EndDate = getenvDefault("END_DATE", cfg.EndDate)
	cfg.StorageBackend = strings.ToLower(getenvDefault("STORAGE_BACKEND", cfg.StorageBackend))
	cfg.S3Bucket = getenvDefault("S3_BUCKET", cfg.S3Bucket)
	cfg.KeyPrefix = getenvDefault("KEY_PREFIX", cfg.KeyPrefix)
	cfg.S3Region = getenvDefault("S3_REGION", cfg.S3Region)
	cfg.S3Endpoint = getenvDefault("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3AccessKeyID = getenvDefault("S3_ACCESS_KEY_ID", cfg.S3AccessKeyID)
	cfg.S3SecretAccessKey = getenvDefault("S3_SECRET_ACCESS_KEY", cfg.S3SecretAccessKey)
	cfg.OutputDir = getenvDefault("OUTPUT_DIR", cfg.OutputDir)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.PushgatewayURL = getenvDefault("PUSHGATEWAY_URL", cfg.PushgatewayURL)
	cfg.HistoryDSN = getenvDefault("HISTORY_DSN", cfg.HistoryDSN)
	cfg.Schedule = getenvDefault("SCHEDULE", cfg.Schedule)
	cfg.Port = getenvDefault("PORT", cfg.Port)

	if v := os.Getenv("DATATYPE_IDS"); v != "" {
		cfg.DatatypeIDs = common.SplitList(v)
	}

	var err error
	if cfg.PageSize, err = getenvInt("PAGE_SIZE", cfg.PageSize); err != nil {
		return err
	}
	if cfg.BreakerMaxFailures, err = getenvInt("BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return err
	}
	if cfg.HistoryMaxRuns, err = getenvInt("HISTORY_MAX_RUNS", cfg.HistoryMaxRuns); err != nil {
		return err
	}
	if cfg.RequestDelay, err = getenvDuration("REQUEST_DELAY", cfg.RequestDelay); err != nil {
		return err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return err
	}
	if cfg.ScheduleInterval, err = getenvDuration("SCHEDULE_INTERVAL", cfg.ScheduleInterval); err != nil {
		return err
	}
	if cfg.HistoryMaxAge, err = getenvDuration("HISTORY_MAX_AGE", cfg.HistoryMaxAge); err != nil {
		return err
	}
	if v := os.Getenv("S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid S3_PATH_STYLE: %w", err)
		}
		cfg.S3PathStyle = b
	}
	return nil
}

// Validate checks field constraints and the date range.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.EndDate != "" {
		start, _ := time.Parse(extract.DateLayout, c.StartDate)
		end, _ := time.Parse(extract.DateLayout, c.EndDate)
		if end.Before(start) {
			return errors.New("invalid config: END_DATE is before START_DATE")
		}
	}
	return nil
}

// ExtractParams returns the job settings.
func (c *AppConfig) ExtractParams() extract.Params {
	p := extract.Params{
		LocationID:  c.LocationID,
		DatasetID:   c.DatasetID,
		DatatypeIDs: append([]string(nil), c.DatatypeIDs...),
		Units:       c.Units,
	}
	// both dates were checked by Validate
	p.StartDate, _ = time.Parse(extract.DateLayout, c.StartDate)
	if c.EndDate != "" {
		p.EndDate, _ = time.Parse(extract.DateLayout, c.EndDate)
	}
	return p
}

// NoaaOptions returns the client settings. Observer and Logger are left to the caller.
func (c *AppConfig) NoaaOptions() noaa.Options {
	return noaa.Options{
		BaseURL:            c.BaseURL,
		Token:              c.APIToken,
		PageSize:           c.PageSize,
		Delay:              c.RequestDelay,
		Termination:        noaa.Termination(c.PaginationMode),
		BreakerMaxFailures: uint32(c.BreakerMaxFailures),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
