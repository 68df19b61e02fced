package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Market      MarketConfig     `yaml:"market"`
	Mirror      MirrorConfig     `yaml:"mirror"`
	Manifest    ManifestConfig   `yaml:"manifest"`
	Fetch       FetchConfig      `yaml:"fetch"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Cache       CacheConfig      `yaml:"cache"`
	Output      OutputConfig     `yaml:"output"`
	Store       StoreConfig      `yaml:"store"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Resolver    ResolverConfig   `yaml:"resolver"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stdout" validate:"required"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type MarketConfig struct {
	BaseURL  string `yaml:"base_url" default:"https://api.warframe.market/v1" validate:"required,url"`
	Platform string `yaml:"platform" default:"pc" validate:"oneof=pc ps4 xbox switch"`
	Language string `yaml:"language" default:"en" validate:"required"`
}

type MirrorConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	BaseURL string `yaml:"base_url" default:"https://relics.run" validate:"required,url"`
}

type ManifestConfig struct {
	Enabled  bool   `yaml:"enabled" default:"true"`
	IndexURL string `yaml:"index_url" default:"https://origin.warframe.com/PublicExport/index_en.txt.lzma" validate:"required,url"`
	BaseURL  string `yaml:"base_url" default:"http://content.warframe.com/PublicExport/Manifest" validate:"required,url"`
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"24h"`
	MaxAttempts int           `yaml:"max_attempts" default:"5" validate:"min=1,max=20"`
	Backoff     time.Duration `yaml:"backoff" default:"1s"`
	BackoffKind string        `yaml:"backoff_kind" default:"fixed" validate:"oneof=fixed linear"`
	UserAgent   string        `yaml:"user_agent" default:"MarketEngine/1.0"`
}

type RateLimitConfig struct {
	Capacity int           `yaml:"capacity" default:"3" validate:"min=1"`
	Period   time.Duration `yaml:"period" default:"1s"`
	Mode     string        `yaml:"mode" default:"window" validate:"oneof=window smooth"`
}

type CacheConfig struct {
	Backend    string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	MemorySize int           `yaml:"memory_size" default:"10000" validate:"min=1"`
	MemoryTTL  time.Duration `yaml:"memory_ttl" default:"1m"`
	Redis      RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0"`
	Prefix   string `yaml:"prefix" default:"marketengine"`
}

type OutputConfig struct {
	Dir string `yaml:"dir" default:"data" validate:"required"`
}

type StoreConfig struct {
	Driver          string        `yaml:"driver" default:"sqlite" validate:"oneof=mysql sqlite"`
	DSN             string        `yaml:"dsn" default:"marketengine.db" validate:"required"`
	BatchSize       int           `yaml:"batch_size" default:"10000" validate:"min=1"`
	CommitMode      string        `yaml:"commit_mode" default:"run" validate:"oneof=run date"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"1h"`
	LogQueries      bool          `yaml:"log_queries"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000" validate:"min=1,max=65535"`
	Database     string        `yaml:"database" default:"marketengine"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert"`
	MaxConns     int           `yaml:"max_conns" default:"4" validate:"min=1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"30s"`

	// Mirror table. Retention adds a TTL on datetime; zero keeps rows forever.
	Table     string        `yaml:"table" default:"item_statistics" validate:"required"`
	BatchSize int           `yaml:"batch_size" default:"5000" validate:"min=1"`
	Retention time.Duration `yaml:"retention"`
}

type KafkaConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Brokers      []string       `yaml:"brokers" default:"[\"localhost:9092\"]"`
	Topics       KafkaTopics    `yaml:"topics"`
	RequiredAcks int            `yaml:"required_acks" default:"-1"`
	Compression  string         `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     KafkaProducer  `yaml:"producer"`
	Consumer     KafkaConsumer  `yaml:"consumer"`
	Collector    KafkaCollector `yaml:"collector"`
}

type KafkaTopics struct {
	Artifacts string `yaml:"artifacts" default:"marketengine.artifacts"`
	Loaded    string `yaml:"loaded" default:"marketengine.loaded"`
	Logs      string `yaml:"logs" default:"marketengine.logs"`
}

type KafkaProducer struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"5"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumer struct {
	GroupID    string        `yaml:"group_id" default:"marketengine-loader"`
	Workers    int           `yaml:"workers" default:"1" validate:"min=1"`
	BufferSize int           `yaml:"buffer_size" default:"16"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"marketengine.artifacts.dlq"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	// earliest replays artifacts announced while the follower was down.
	OffsetReset string `yaml:"offset_reset" default:"earliest" validate:"oneof=earliest latest"`
}

type KafkaCollector struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval" default:"30s"`
	CountThreshold int           `yaml:"count_threshold" default:"100"`
}

type ResolverConfig struct {
	LRUSize         int    `yaml:"lru_size" default:"4096" validate:"min=1"`
	TranslationFile string `yaml:"translation_file"`
	Threshold       int    `yaml:"threshold" default:"50" validate:"min=0,max=100"`
}

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies
// environment overrides. An empty path starts from the defaults.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	num("SERVER_PORT", &c.Server.Port)
	str("MARKET_PLATFORM", &c.Market.Platform)
	str("MARKET_LANGUAGE", &c.Market.Language)
	str("OUTPUT_DIR", &c.Output.Dir)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("REDIS_HOST", &c.Cache.Redis.Host)
	num("REDIS_PORT", &c.Cache.Redis.Port)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("STORE_COMMIT_MODE", &c.Store.CommitMode)
	flag("CLICKHOUSE_ENABLED", &c.ClickHouse.Enabled)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	flag("KAFKA_ENABLED", &c.Kafka.Enabled)
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.RateLimit.Period <= 0 {
		return fmt.Errorf("rate_limit.period must be positive")
	}
	return nil
}

// RedisAddr returns host:port of the redis cache backend.
func (c CacheConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
