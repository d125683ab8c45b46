package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at startup from build information.
var Version = "dev"

// SetVersion stores the build version for logging and health reporting.
func SetVersion(v string) {
	if v != "" {
		Version = v
	}
}

var validate = validator.New()

// Config holds every sub-config.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  validate:"required"`
	Broker   BrokerConfig   `mapstructure:"broker"   validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
}

func init() {
	registerCustomValidators()
}

func registerCustomValidators() {
	// listen address: ":8080" or "host:port"
	must(validate.RegisterValidation("listenaddr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return false
		}
		if strings.HasPrefix(addr, ":") {
			addr = "0.0.0.0" + addr
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return false
		}
		_ = host
		return true
	}))

	must(validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}))

	must(validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "console", "json":
			return true
		}
		return false
	}))
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("config: register validator: %v", err))
	}
}

// Load reads configuration from embedded defaults, an optional YAML file and
// CARTELERA_* environment variables, in increasing precedence.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read embedded defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("CARTELERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if log != nil {
		log.Info("configuration loaded",
			zap.String("ws_addr", cfg.Broker.WSAddr),
			zap.String("log_level", cfg.Logging.Level))
	}
	return &cfg, nil
}
