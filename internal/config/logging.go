package config

// LoggingConfig holds logging-related settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"       json:"level"       validate:"required,log_level"`
	FilePath   string `mapstructure:"file"        json:"file"        validate:"omitempty"`
	Format     string `mapstructure:"format"      json:"format"      validate:"omitempty,log_format"`
	MaxSize    int    `mapstructure:"max_size"    json:"max_size"    validate:"required,min=1,max=1000"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" validate:"min=0,max=100"`
	MaxAge     int    `mapstructure:"max_age"     json:"max_age"     validate:"required,min=1,max=365"`
}
