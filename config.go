package imago

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the settings of an Imago handler. Any field left at its zero
// value by the caller can be filled from the environment with LoadConfig, and
// zero durations fall back to their defaults. A negative PollTimeout disables
// the timeout. Precheck can only be switched on: an explicit false does not
// override IMAGO_PRECHECK=true.
type Config struct {
	S3Bucket string `yaml:"s3_bucket" env:"S3_BUCKET" env-description:"bucket the source images are imported from"`
	S3Key    string `yaml:"s3_key" env:"AWS_ACCESS_KEY_ID" env-description:"access key for the source bucket"`
	S3Secret string `yaml:"s3_secret" env:"AWS_SECRET_ACCESS_KEY" env-description:"secret key for the source bucket"`
	S3Region string `yaml:"s3_region" env:"AWS_REGION" env-description:"region of the source bucket, used by the precheck"`

	TransloaditAuthKey    string `yaml:"transloadit_auth_key" env:"TRANSLOADIT_AUTH_KEY" env-description:"Transloadit auth key"`
	TransloaditAuthSecret string `yaml:"transloadit_auth_secret" env:"TRANSLOADIT_SECRET_KEY" env-description:"Transloadit auth secret"`
	TransloaditEndpoint   string `yaml:"transloadit_endpoint" env:"TRANSLOADIT_ENDPOINT" env-description:"Transloadit API base URL"`

	PollInterval time.Duration `yaml:"poll_interval" env:"IMAGO_POLL_INTERVAL" env-description:"delay between assembly status requests"`
	PollTimeout  time.Duration `yaml:"poll_timeout" env:"IMAGO_POLL_TIMEOUT" env-description:"give up on an assembly after this long, negative for no limit"`
	MaxPolls     int           `yaml:"max_polls" env:"IMAGO_MAX_POLLS" env-description:"give up on an assembly after this many status requests, 0 for no limit"`

	Precheck bool `yaml:"precheck" env:"IMAGO_PRECHECK" env-description:"HEAD the source object before submitting an assembly"`
}

// LoadConfig fills the zero fields of explicit from the environment.
func LoadConfig(explicit Config) (Config, error) {
	var env Config
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, err
	}
	return explicit.merge(env), nil
}

// LoadConfigFile is like LoadConfig but reads path (YAML, TOML, JSON or .env)
// before the environment.
func LoadConfigFile(path string, explicit Config) (Config, error) {
	var file Config
	if err := cleanenv.ReadConfig(path, &file); err != nil {
		return Config{}, err
	}
	return explicit.merge(file), nil
}

// Credentials returns the import step credentials.
func (c Config) Credentials() Credentials {
	return Credentials{
		Bucket: c.S3Bucket,
		Key:    c.S3Key,
		Secret: c.S3Secret,
	}
}

func (c Config) merge(fallback Config) Config {
	if c.S3Bucket == "" {
		c.S3Bucket = fallback.S3Bucket
	}
	if c.S3Key == "" {
		c.S3Key = fallback.S3Key
	}
	if c.S3Secret == "" {
		c.S3Secret = fallback.S3Secret
	}
	if c.S3Region == "" {
		c.S3Region = fallback.S3Region
	}
	if c.TransloaditAuthKey == "" {
		c.TransloaditAuthKey = fallback.TransloaditAuthKey
	}
	if c.TransloaditAuthSecret == "" {
		c.TransloaditAuthSecret = fallback.TransloaditAuthSecret
	}
	if c.TransloaditEndpoint == "" {
		c.TransloaditEndpoint = fallback.TransloaditEndpoint
	}
	if c.PollInterval == 0 {
		c.PollInterval = fallback.PollInterval
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = fallback.PollTimeout
	}
	if c.MaxPolls == 0 {
		c.MaxPolls = fallback.MaxPolls
	}
	if !c.Precheck {
		c.Precheck = fallback.Precheck
	}
	return c
}

func (c Config) withDefaults() Config {
	return c.merge(Config{
		TransloaditEndpoint: DefaultEndpoint,
		PollInterval:        DefaultPollInterval,
		PollTimeout:         DefaultPollTimeout,
	})
}
