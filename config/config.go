package config

import (
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lumafield/s3-load-benchmark/sbmark"
)

// DefaultPath is tried when no config file is given.
const DefaultPath = "config.yaml"

// Config holds the settings of a benchmark run.
//
// YAML example:
//
//	endpoint: "http://localhost:8000"
//	buckets: ["bench-a", "bench-b"]
//	mode: "GET"
//	objectsFile: "objects.json"
//	objectSize: "4 KiB"
//	executor:
//	  startRate: 1
//	  timeUnit: "1s"
//	  stages:
//	    - duration: "30s"
//	      target: 100
//
// Environment overrides (see ApplyEnv): BASE_URL, BUCKETS, MODE, OBJECTS,
// OBJECT_SIZE, AWS_ACCESS_KEY, AWS_SECRET_KEY, AWS_REGION, RESULTS_BUCKET,
// VUS, SEED_OBJECTS, TEST_ID, LOG_LEVEL, METRICS_ADDR.
type Config struct {
	Endpoint      string   `yaml:"endpoint"`
	Buckets       []string `yaml:"buckets"`
	Mode          string   `yaml:"mode"`        // "GET" or "PUT"
	ObjectsFile   string   `yaml:"objectsFile"` // JSON array of [bucket, key]
	ObjectSize    string   `yaml:"objectSize"`  // bytes, "4096" or "4 KiB"
	AccessKey     string   `yaml:"accessKey"`
	SecretKey     string   `yaml:"secretKey"`
	Region        string   `yaml:"region"`
	ResultsBucket string   `yaml:"resultsBucket,omitempty"`
	TestID        string   `yaml:"testID,omitempty"`
	SeedObjects   int      `yaml:"seedObjects"`
	LogLevel      string   `yaml:"logLevel"`
	MetricsAddr   string   `yaml:"metricsAddr,omitempty"`

	Client     ClientConfig     `yaml:"client"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Seeder     SeederConfig     `yaml:"seeder"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Listing    ListingConfig    `yaml:"listing"`
}

// ClientConfig tunes the HTTP client of the signed S3 client.
type ClientConfig struct {
	Insecure          bool   `yaml:"insecure"`
	DisableKeepAlives bool   `yaml:"disableKeepAlives"`
	Timeout           string `yaml:"timeout"` // e.g. "180s"
	MaxConnsPerHost   int    `yaml:"maxConnsPerHost,omitempty"`
	UnsignedPayload   bool   `yaml:"unsignedPayload"`
	EscapePath        bool   `yaml:"escapePath"` // false for S3, the path is encoded once
}

// ExecutorConfig describes the ramping arrival rate profile.
type ExecutorConfig struct {
	StartRate      float64       `yaml:"startRate"`
	TimeUnit       string        `yaml:"timeUnit"`
	MaxVUs         int           `yaml:"maxVUs"`
	GracefulStop   string        `yaml:"gracefulStop"`
	AbortEvalDelay string        `yaml:"abortEvalDelay"`
	Stages         []StageConfig `yaml:"stages"`
}

type StageConfig struct {
	Duration string  `yaml:"duration"`
	Target   float64 `yaml:"target"`
}

type SeederConfig struct {
	BatchPerHost int     `yaml:"batchPerHost"`
	RateLimit    float64 `yaml:"rateLimit,omitempty"` // PUTs per second, 0 = unlimited
}

// ThresholdsConfig holds the pass/fail criteria. A zero value disables a check.
type ThresholdsConfig struct {
	Enabled            bool    `yaml:"enabled"`
	MaxFailedRate      float64 `yaml:"maxFailedRate"`
	P95                string  `yaml:"p95"`
	P99                string  `yaml:"p99"`
	MaxClientErrorRate float64 `yaml:"maxClientErrorRate"`
	MaxCriticalErrors  int64   `yaml:"maxCriticalErrors"`
	// AbortOnCritical stops the run once MaxCriticalErrors is reached. Off by
	// default, the critical count is then only a recorded pass/fail.
	AbortOnCritical bool `yaml:"abortOnCritical"`
}

// ListingConfig is used by the object listing command.
type ListingConfig struct {
	Limit       int `yaml:"limit"` // max objects per bucket
	Concurrency int `yaml:"concurrency"`
}

// Default returns the settings of the stock run: GET against a local
// endpoint with the 100 to 1000 requests per second ramp.
func Default() Config {
	cfg := Config{
		Endpoint:    "http://localhost:8000",
		Buckets:     []string{"k6-benchmark-bucket"},
		Mode:        string(sbmark.ModeGet),
		ObjectsFile: "objects.json",
		ObjectSize:  "4096",
		Region:      "us-east-1",
		LogLevel:    "info",
		Client: ClientConfig{
			Timeout: "180s",
		},
		Executor: ExecutorConfig{
			MaxVUs:         sbmark.DefaultMaxVUs,
			GracefulStop:   "30s",
			AbortEvalDelay: "10s",
		},
		Seeder: SeederConfig{
			BatchPerHost: sbmark.DefaultBatchPerHost,
		},
		Thresholds: ThresholdsConfig{
			Enabled:            true,
			MaxFailedRate:      0.10,
			P95:                "100ms",
			P99:                "1000ms",
			MaxClientErrorRate: 0.01,
			MaxCriticalErrors:  1,
		},
		Listing: ListingConfig{
			Limit:       2000000,
			Concurrency: 8,
		},
	}

	profile := sbmark.DefaultProfile()
	cfg.Executor.StartRate = profile.StartRate
	cfg.Executor.TimeUnit = profile.TimeUnit.String()
	for _, s := range profile.Stages {
		cfg.Executor.Stages = append(cfg.Executor.Stages, StageConfig{Duration: s.Duration.String(), Target: s.Target})
	}
	return cfg
}

// Load reads configuration from path on top of Default(). If path is empty it
// tries ./config.yaml and falls back to the defaults when that doesn't exist.
// Environment overrides are not applied here, see ApplyEnv.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			return cfg, nil
		}
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, errors.Wrapf(sbmark.ErrConfiguration, "config file %s not found", path)
		}
		return Config{}, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(sbmark.ErrConfiguration, "parse config %s: %v", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the environment variables found by lookup.
// Empty values are ignored.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("BASE_URL"); ok {
		cfg.Endpoint = v
	}
	if v, ok := get("BUCKETS"); ok {
		cfg.Buckets = sbmark.ParseBucketList(v)
	}
	if v, ok := get("MODE"); ok {
		cfg.Mode = strings.ToUpper(v)
	}
	if v, ok := get("OBJECTS"); ok {
		cfg.ObjectsFile = v
	}
	if v, ok := get("OBJECT_SIZE"); ok {
		cfg.ObjectSize = v
	}
	if v, ok := get("AWS_ACCESS_KEY"); ok {
		cfg.AccessKey = v
	}
	if v, ok := get("AWS_SECRET_KEY"); ok {
		cfg.SecretKey = v
	}
	if v, ok := get("AWS_REGION"); ok {
		cfg.Region = v
	}
	if v, ok := get("RESULTS_BUCKET"); ok {
		cfg.ResultsBucket = v
	}
	if v, ok := get("TEST_ID"); ok {
		cfg.TestID = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := get("VUS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(sbmark.ErrConfiguration, "VUS=%q is not a number", v)
		}
		cfg.Executor.MaxVUs = n
	}
	if v, ok := get("SEED_OBJECTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(sbmark.ErrConfiguration, "SEED_OBJECTS=%q is not a number", v)
		}
		cfg.SeedObjects = n
	}
	return cfg, nil
}

// Validate checks that every field can be converted and is in range.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.Wrap(sbmark.ErrConfiguration, "endpoint is required")
	}
	if len(c.Buckets) == 0 {
		return errors.Wrap(sbmark.ErrConfiguration, "at least one bucket is required")
	}
	mode, err := sbmark.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	size, err := c.ObjectSizeBytes()
	if err != nil {
		return err
	}
	if (mode == sbmark.ModePut || c.SeedObjects > 0) && size < sbmark.MinPutPayloadSize {
		return errors.Wrapf(sbmark.ErrConfiguration, "object size must be at least %d bytes", sbmark.MinPutPayloadSize)
	}
	if c.SeedObjects < 0 {
		return errors.Wrap(sbmark.ErrConfiguration, "seedObjects must not be negative")
	}
	if c.Executor.MaxVUs <= 0 {
		return errors.Wrap(sbmark.ErrConfiguration, "maxVUs must be positive")
	}
	if _, err := c.ClientTimeout(); err != nil {
		return err
	}
	profile, err := c.Profile()
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	if _, err := c.ThresholdSet(); err != nil {
		return err
	}
	for _, d := range []struct{ name, value string }{
		{"gracefulStop", c.Executor.GracefulStop},
		{"abortEvalDelay", c.Executor.AbortEvalDelay},
	} {
		if _, err := parseDuration(d.name, d.value); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) ParsedMode() (sbmark.Mode, error) {
	return sbmark.ParseMode(c.Mode)
}

func (c Config) ObjectSizeBytes() (uint64, error) {
	return sbmark.ParseByteSize(c.ObjectSize)
}

func (c Config) ClientTimeout() (time.Duration, error) {
	return parseDuration("client.timeout", c.Client.Timeout)
}

func (c Config) GracefulStop() time.Duration {
	d, _ := parseDuration("gracefulStop", c.Executor.GracefulStop)
	return d
}

func (c Config) AbortEvalDelay() time.Duration {
	d, _ := parseDuration("abortEvalDelay", c.Executor.AbortEvalDelay)
	return d
}

// Profile converts the executor section into an arrival rate profile.
func (c Config) Profile() (sbmark.Profile, error) {
	unit, err := parseDuration("timeUnit", c.Executor.TimeUnit)
	if err != nil {
		return sbmark.Profile{}, err
	}
	p := sbmark.Profile{StartRate: c.Executor.StartRate, TimeUnit: unit}
	for i, s := range c.Executor.Stages {
		d, err := parseDuration("stages["+strconv.Itoa(i)+"].duration", s.Duration)
		if err != nil {
			return sbmark.Profile{}, err
		}
		p.Stages = append(p.Stages, sbmark.Stage{Duration: d, Target: s.Target})
	}
	return p, nil
}

// ThresholdSet returns the configured thresholds, all disabled when Enabled is false.
func (c Config) ThresholdSet() (sbmark.Thresholds, error) {
	t := c.Thresholds
	if !t.Enabled {
		return sbmark.Thresholds{}, nil
	}
	p95, err := parseDuration("thresholds.p95", t.P95)
	if err != nil {
		return sbmark.Thresholds{}, err
	}
	p99, err := parseDuration("thresholds.p99", t.P99)
	if err != nil {
		return sbmark.Thresholds{}, err
	}
	return sbmark.Thresholds{
		MaxFailedRate:      t.MaxFailedRate,
		P95:                p95,
		P99:                p99,
		MaxClientErrorRate: t.MaxClientErrorRate,
		MaxCriticalErrors:  t.MaxCriticalErrors,
	}, nil
}

// ExecutorCriticalLimit is the critical error count that stops a run, zero
// when the run must not be aborted.
func (c Config) ExecutorCriticalLimit() int64 {
	if !c.Thresholds.AbortOnCritical {
		return 0
	}
	th, err := c.ThresholdSet()
	if err != nil {
		return 0
	}
	return th.MaxCriticalErrors
}

// empty means zero
func parseDuration(name, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Wrapf(sbmark.ErrConfiguration, "%s: invalid duration %q", name, value)
	}
	if d < 0 {
		return 0, errors.Wrapf(sbmark.ErrConfiguration, "%s: negative duration %q", name, value)
	}
	return d, nil
}
