package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/danthegoodman1/icescan/utils"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Port             string `yaml:"port" validate:"required,numeric"`
		ShutdownSleepSec int64  `yaml:"shutdown_sleep_sec" validate:"gte=0"`
	} `yaml:"http"`

	// MetaStore is "memory" or "crdb"
	MetaStore string `yaml:"metastore" validate:"oneof=memory crdb"`
	CRDB      struct {
		DSN      string `yaml:"dsn" validate:"required_if=Enabled true"`
		MaxConns int32  `yaml:"max_conns" validate:"gte=1"`
		Enabled  bool   `yaml:"-"`
	} `yaml:"crdb"`

	Disk struct {
		// Root is where file:// locations are resolved from
		Root string `yaml:"root" validate:"required"`
	} `yaml:"disk"`

	S3 struct {
		Bucket   string `yaml:"bucket"`
		Prefix   string `yaml:"prefix"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	} `yaml:"s3"`

	Scan struct {
		BatchSize              int   `yaml:"batch_size" validate:"gte=1"`
		TargetPartitions       int   `yaml:"target_partitions" validate:"gte=1"`
		RepartitionFileMinSize int64 `yaml:"repartition_file_min_size" validate:"gte=0"`
		PoolSize               int   `yaml:"pool_size" validate:"gte=1"`
	} `yaml:"scan"`
}

func defaults() *Config {
	var cfg Config
	cfg.HTTP.Port = "8080"
	cfg.MetaStore = "memory"
	cfg.CRDB.MaxConns = 10
	cfg.Disk.Root = "/"
	cfg.S3.Region = "us-east-1"
	cfg.Scan.BatchSize = 8192
	cfg.Scan.TargetPartitions = 4
	cfg.Scan.RepartitionFileMinSize = 10 * 1024 * 1024
	cfg.Scan.PoolSize = 8
	return &cfg
}

// LoadConfig reads the yaml file at path, when given, over the defaults and
// then applies environment variables over it.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error in yaml.Unmarshal: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.CRDB.Enabled = cfg.MetaStore == "crdb"
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	cfg.HTTP.Port = utils.GetEnvOrDefault("HTTP_PORT", cfg.HTTP.Port)
	cfg.MetaStore = utils.GetEnvOrDefault("METASTORE", cfg.MetaStore)
	cfg.CRDB.DSN = utils.GetEnvOrDefault("CRDB_DSN", cfg.CRDB.DSN)
	cfg.Disk.Root = utils.GetEnvOrDefault("DATA_ROOT", cfg.Disk.Root)
	cfg.S3.Bucket = utils.GetEnvOrDefault("S3_BUCKET_NAME", cfg.S3.Bucket)
	cfg.S3.Endpoint = utils.GetEnvOrDefault("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = utils.GetEnvOrDefault("AWS_DEFAULT_REGION", cfg.S3.Region)

	for _, v := range []struct {
		env string
		set func(int64)
	}{
		{"SHUTDOWN_SLEEP_SEC", func(n int64) { cfg.HTTP.ShutdownSleepSec = n }},
		{"CRDB_MAX_CONNS", func(n int64) { cfg.CRDB.MaxConns = int32(n) }},
		{"SCAN_BATCH_SIZE", func(n int64) { cfg.Scan.BatchSize = int(n) }},
		{"SCAN_TARGET_PARTITIONS", func(n int64) { cfg.Scan.TargetPartitions = int(n) }},
		{"SCAN_REPARTITION_MIN_SIZE", func(n int64) { cfg.Scan.RepartitionFileMinSize = n }},
		{"SCAN_POOL_SIZE", func(n int64) { cfg.Scan.PoolSize = int(n) }},
	} {
		raw := os.Getenv(v.env)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("error parsing %s: %w", v.env, err)
		}
		v.set(n)
	}
	return nil
}
