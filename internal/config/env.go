package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local" validate:"oneof=local dev prod"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200" validate:"required,numeric"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// APIKey guards the local status API. Empty disables the check.
	APIKey   string `envconfig:"API_KEY"`
	Timezone string `envconfig:"TIMEZONE" default:"Local"`
}

type APIEnv struct {
	BaseURL     string        `envconfig:"API_BASE_URL" default:"https://infinitech-api5.site/api" validate:"required,url"`
	OwnerKey    string        `envconfig:"API_OWNER_KEY"`
	BearerToken string        `envconfig:"API_BEARER_TOKEN"`
	Timeout     time.Duration `envconfig:"API_TIMEOUT" default:"10s" validate:"gt=0"`
}

type MonitorEnv struct {
	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"500ms" validate:"gt=0"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s" validate:"gt=0"`
}

type AlarmEnv struct {
	SoundFile string        `envconfig:"ALARM_SOUND_FILE"`
	Player    string        `envconfig:"ALARM_PLAYER" default:"paplay {file}"`
	Timeout   time.Duration `envconfig:"ALARM_TIMEOUT" default:"15s" validate:"gt=0"`
	Bell      bool          `envconfig:"ALARM_BELL" default:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local" validate:"oneof=local s3"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".infinitask/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET" validate:"required_if=Type s3"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"infinitask/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-southeast-1"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"admin@infinitask.local"`
}

type Env struct {
	BaseEnv
	APIEnv
	MonitorEnv
	AlarmEnv
	StorageEnv
	VAPIDEnv
}

const namespace = "INFINITASK"

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadEnv reads configuration from the process environment. Files in
// dotenvFiles are loaded first without overriding variables already set;
// missing files are ignored.
func LoadEnv(dotenvFiles ...string) (*Env, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) Location() (*time.Location, error) {
	if e == nil || e.Timezone == "" || e.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

// RequireOwnerKey is checked by commands that fetch tasks; user actions by id
// do not need it.
func (e *APIEnv) RequireOwnerKey() error {
	if e.OwnerKey == "" {
		return fmt.Errorf("%s_API_OWNER_KEY is required", namespace)
	}
	return nil
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
