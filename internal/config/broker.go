package config

import "time"

// BrokerConfig holds the WebSocket fan-out server settings.
type BrokerConfig struct {
	WSAddr         string        `mapstructure:"ws_addr"          json:"ws_addr"          validate:"required,listenaddr"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"     json:"idle_timeout"     validate:"required"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    json:"write_timeout"    validate:"required"`
	MaxConnections int           `mapstructure:"max_connections"  json:"max_connections"  validate:"required,min=1,max=100000"`
	MaxFrameBytes  int64         `mapstructure:"max_frame_bytes"  json:"max_frame_bytes"  validate:"required,min=1024"`
	QueueSize      int           `mapstructure:"queue_size"       json:"queue_size"       validate:"required,min=16"`
	RateLimit      RateLimit     `mapstructure:"rate_limit"       json:"rate_limit"`
}

// RateLimit bounds inbound frames per connection.
type RateLimit struct {
	Enabled            bool `mapstructure:"enabled"               json:"enabled"`
	MaxFramesPerSecond int  `mapstructure:"max_frames_per_second" json:"max_frames_per_second" validate:"min=0,max=10000"`
	BurstSize          int  `mapstructure:"burst_size"            json:"burst_size"            validate:"min=0,max=1000"`
}

// AuthConfig holds token verification settings. Token issuance lives in the
// admin backend; the broker only verifies.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" json:"-" validate:"required,min=16"`
}
