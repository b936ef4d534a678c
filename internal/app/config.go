package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	Production  = "production"
	Development = "development"

	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendConsul = "consul"

	CacheMemory = "memory"
	CacheFile   = "file"
	CacheBadger = "badger"

	EnvConfigFile = "GOSSIPS_CONFIG_FILE"

	defaultLogLevel           = "info"
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSBucket         = "gossips"
	defaultConsulAddress      = "127.0.0.1:8500"
	defaultConsulPrefix       = "gossips/"
	defaultConsulWait         = 10 * time.Second
	defaultNegotiationTimeout = 2 * time.Minute
	defaultWrongKeyGrace      = 7 * time.Second
	defaultResubscribeDelay   = time.Second
)

// Config is the runtime configuration of one gossips process.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	PeerID      string `mapstructure:"peer_id"`
	Home        string `mapstructure:"home"`
	Backend     string `mapstructure:"backend"`

	NATS   *NATSConfig   `mapstructure:"nats"`
	Consul *ConsulConfig `mapstructure:"consul"`
	Cache  *CacheConfig  `mapstructure:"cache"`

	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	WrongKeyGrace      time.Duration `mapstructure:"wrong_key_grace"`
	ResubscribeDelay   time.Duration `mapstructure:"resubscribe_delay"`
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	Bucket   string `mapstructure:"bucket"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsulConfig struct {
	Address  string        `mapstructure:"address"`
	Token    string        `mapstructure:"token"`
	Prefix   string        `mapstructure:"prefix"`
	WaitTime time.Duration `mapstructure:"wait_time"`
}

// CacheConfig selects where entered passphrases are kept. Dir defaults to
// Home; Password seals the file and badger caches.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"`
	Password string `mapstructure:"password"`
}

// NewViper returns a viper instance with defaults, GOSSIPS_* environment
// overrides and the config file search path. path, when set, wins over
// $GOSSIPS_CONFIG_FILE.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("GOSSIPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", Development)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("nats.url", defaultNATSURL)
	v.SetDefault("nats.bucket", defaultNATSBucket)
	v.SetDefault("consul.address", defaultConsulAddress)
	v.SetDefault("consul.prefix", defaultConsulPrefix)
	v.SetDefault("consul.wait_time", defaultConsulWait)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("negotiation_timeout", defaultNegotiationTimeout)
	v.SetDefault("wrong_key_grace", defaultWrongKeyGrace)
	v.SetDefault("resubscribe_delay", defaultResubscribeDelay)

	// Keys without defaults still need to be visible to AutomaticEnv.
	for _, key := range []string{"peer_id", "home", "nats.username", "nats.password", "consul.token", "cache.dir", "cache.password"} {
		_ = v.BindEnv(key)
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gossips/")
	}
	return v
}

// Load reads the config file, if any, and decodes it. A missing file in the
// search path is not an error; an explicit path that cannot be read is.
func Load(path string) (*Config, error) {
	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode turns viper settings into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = Development
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Home == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Home = filepath.Join(home, ".gossips")
		} else {
			cfg.Home = ".gossips"
		}
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.NATS == nil {
		cfg.NATS = &NATSConfig{}
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = defaultNATSURL
	}
	if cfg.NATS.Bucket == "" {
		cfg.NATS.Bucket = defaultNATSBucket
	}
	if cfg.Consul == nil {
		cfg.Consul = &ConsulConfig{}
	}
	if cfg.Consul.Address == "" {
		cfg.Consul.Address = defaultConsulAddress
	}
	if cfg.Consul.Prefix == "" {
		cfg.Consul.Prefix = defaultConsulPrefix
	}
	if cfg.Consul.WaitTime == 0 {
		cfg.Consul.WaitTime = defaultConsulWait
	}
	if cfg.Cache == nil {
		cfg.Cache = &CacheConfig{}
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = cfg.Home
	}
	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = defaultNegotiationTimeout
	}
	if cfg.WrongKeyGrace == 0 {
		cfg.WrongKeyGrace = defaultWrongKeyGrace
	}
	if cfg.ResubscribeDelay == 0 {
		cfg.ResubscribeDelay = defaultResubscribeDelay
	}
}

// Validate checks enumerations and required fields.
func (c *Config) Validate() error {
	if err := oneOf("environment", c.Environment, Production, Development); err != nil {
		return err
	}
	if err := oneOf("backend", c.Backend, BackendMemory, BackendNATS, BackendConsul); err != nil {
		return err
	}
	if err := oneOf("cache.backend", c.Cache.Backend, CacheMemory, CacheFile, CacheBadger); err != nil {
		return err
	}
	if c.Cache.Backend != CacheMemory && c.Cache.Password == "" {
		return fmt.Errorf("cache.password is required for the %s cache", c.Cache.Backend)
	}
	if c.NegotiationTimeout < 0 || c.WrongKeyGrace < 0 || c.ResubscribeDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("invalid %s '%s'. Must be one of: %s", key, value, strings.Join(allowed, ", "))
	}
	return nil
}
