package config

// DatabaseConfig holds PostgreSQL connection settings for the catalog store.
type DatabaseConfig struct {
	Server   string `mapstructure:"server"    json:"server"    validate:"required"`
	Port     int    `mapstructure:"port"      json:"port"      validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user"      json:"user"      validate:"required"`
	Password string `mapstructure:"password"  json:"-"`
	Name     string `mapstructure:"name"      json:"name"      validate:"required"`
	SSLMode  string `mapstructure:"ssl_mode"  json:"ssl_mode"  validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxConns int32  `mapstructure:"max_conns" json:"max_conns" validate:"min=0,max=1000"`
}
