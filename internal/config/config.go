package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int `validate:"min=1,max=65535"`
}

type DBConfig struct {
	Driver          string `validate:"oneof=postgres mysql"`
	DSN             string
	MaxOpenConns    int `validate:"min=0"`
	MaxIdleConns    int `validate:"min=0"`
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type LogConfig struct {
	Level string
	File  string
}

type ScanConfig struct {
	Source        string
	FrameInterval int `validate:"min=1"`
	FFmpegPath    string
	SortTokens    bool
	JPEGQuality   int `validate:"min=1,max=100"`
}

type DetectorConfig struct {
	VehicleBackend string `validate:"oneof=http rekognition"`
	VehicleURL     string `validate:"omitempty,url"`
	PlateURL       string `validate:"omitempty,url"`
	VehicleLabels  []string
	Timeout        time.Duration
	RateLimit      float64 `validate:"min=0"`
}

type RecognizerConfig struct {
	URL       string `validate:"omitempty,url"`
	Languages []string
	Timeout   time.Duration
}

type DispatchConfig struct {
	Backend string `validate:"oneof=db api"`
	APIURL  string `validate:"omitempty,url"`
	Timeout time.Duration
}

type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	PublicBaseURL   string
	LocalDir        string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type Config struct {
	Environment string
	Log         LogConfig
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Scan        ScanConfig
	Detector    DetectorConfig
	Recognizer  RecognizerConfig
	Dispatch    DispatchConfig
	Storage     StorageConfig
	AWS         AWSConfig
}

// flagKeys maps command-line flags to the environment keys they override.
var flagKeys = map[string]string{
	"source":   "SCAN_SOURCE",
	"interval": "SCAN_FRAME_INTERVAL",
	"backend":  "DISPATCH_BACKEND",
}

var validate = validator.New()

// Load reads app.env (when present) and the environment. Flags registered on
// the optional flag set take precedence when they were set explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Scan: ScanConfig{
			Source:        v.GetString("SCAN_SOURCE"),
			FrameInterval: v.GetInt("SCAN_FRAME_INTERVAL"),
			FFmpegPath:    v.GetString("SCAN_FFMPEG_PATH"),
			SortTokens:    v.GetBool("SCAN_SORT_TOKENS"),
			JPEGQuality:   v.GetInt("SCAN_JPEG_QUALITY"),
		},
		Detector: DetectorConfig{
			VehicleBackend: strings.ToLower(v.GetString("DETECTOR_VEHICLE_BACKEND")),
			VehicleURL:     v.GetString("DETECTOR_VEHICLE_URL"),
			PlateURL:       v.GetString("DETECTOR_PLATE_URL"),
			VehicleLabels:  splitList(v.GetString("DETECTOR_VEHICLE_LABELS")),
			Timeout:        v.GetDuration("DETECTOR_TIMEOUT"),
			RateLimit:      v.GetFloat64("DETECTOR_RATE_LIMIT"),
		},
		Recognizer: RecognizerConfig{
			URL:       v.GetString("RECOGNIZER_URL"),
			Languages: splitList(v.GetString("RECOGNIZER_LANGUAGES")),
			Timeout:   v.GetDuration("RECOGNIZER_TIMEOUT"),
		},
		Dispatch: DispatchConfig{
			Backend: strings.ToLower(v.GetString("DISPATCH_BACKEND")),
			APIURL:  v.GetString("DISPATCH_API_URL"),
			Timeout: v.GetDuration("DISPATCH_TIMEOUT"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			PublicBaseURL:   v.GetString("STORAGE_PUBLIC_BASE_URL"),
			LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("AWS_REGION"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("SCAN_FRAME_INTERVAL", 6)
	v.SetDefault("SCAN_FFMPEG_PATH", "ffmpeg")
	v.SetDefault("SCAN_JPEG_QUALITY", 90)
	v.SetDefault("DETECTOR_VEHICLE_BACKEND", "http")
	v.SetDefault("DETECTOR_TIMEOUT", 30*time.Second)
	v.SetDefault("DETECTOR_VEHICLE_LABELS", "Car,Truck,Bus,Motorcycle,Vehicle")
	v.SetDefault("RECOGNIZER_LANGUAGES", "ko,en")
	v.SetDefault("RECOGNIZER_TIMEOUT", 30*time.Second)
	v.SetDefault("DISPATCH_BACKEND", "api")
	v.SetDefault("DISPATCH_API_URL", "http://localhost:3000/api/vehicles")
	v.SetDefault("DISPATCH_TIMEOUT", 30*time.Second)
	v.SetDefault("STORAGE_REGION", "auto")
	v.SetDefault("STORAGE_LOCAL_DIR", "./storage/frames")
}

// ValidateScanner checks the settings the batch scanner cannot run without.
func (c *Config) ValidateScanner() error {
	var errs []error
	if c.Scan.Source == "" {
		errs = append(errs, errors.New("SCAN_SOURCE (or --source) is required"))
	}
	errs = append(errs, c.validatePipeline()...)
	return errors.Join(errs...)
}

func (c *Config) ValidateServer() error {
	var errs []error
	if c.DB.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Auth.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	}
	errs = append(errs, c.validatePipeline()...)
	return errors.Join(errs...)
}

func (c *Config) validatePipeline() []error {
	var errs []error
	switch c.Detector.VehicleBackend {
	case "http":
		if c.Detector.VehicleURL == "" {
			errs = append(errs, errors.New("DETECTOR_VEHICLE_URL is required for the http vehicle backend"))
		}
	case "rekognition":
		if c.AWS.Region == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the rekognition vehicle backend"))
		}
	}
	if c.Detector.PlateURL == "" {
		errs = append(errs, errors.New("DETECTOR_PLATE_URL is required"))
	}
	if c.Recognizer.URL == "" {
		errs = append(errs, errors.New("RECOGNIZER_URL is required"))
	}
	switch c.Dispatch.Backend {
	case "api":
		if c.Dispatch.APIURL == "" {
			errs = append(errs, errors.New("DISPATCH_API_URL is required for the api backend"))
		}
	case "db":
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for the db backend"))
		}
	}
	return errs
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
