package config

import "go.uber.org/zap/zapcore"

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = "console"
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = "json"
)

// LoggerConfig holds the logging level for each module.
type LoggerConfig struct {
	Encoder              LogEncoder `mapstructure:"log-encoder"`
	AppLoggerLevel       string     `mapstructure:"app"`
	DatabaseLoggerLevel  string     `mapstructure:"database"`
	CollectorLoggerLevel string     `mapstructure:"collector"`
	DownloadsLoggerLevel string     `mapstructure:"downloads"`
	SenderLoggerLevel    string     `mapstructure:"senderfilters"`
	TokensLoggerLevel    string     `mapstructure:"tokens"`
	EventLoopLoggerLevel string     `mapstructure:"eventloop"`
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder:              ConsoleLogEncoder,
		AppLoggerLevel:       defaultLoggingLevel.String(),
		DatabaseLoggerLevel:  defaultLoggingLevel.String(),
		CollectorLoggerLevel: defaultLoggingLevel.String(),
		DownloadsLoggerLevel: defaultLoggingLevel.String(),
		SenderLoggerLevel:    defaultLoggingLevel.String(),
		TokensLoggerLevel:    defaultLoggingLevel.String(),
		EventLoopLoggerLevel: defaultLoggingLevel.String(),
	}
}

// SetLevel overrides level of every module.
func (cfg *LoggerConfig) SetLevel(level string) {
	for _, l := range []*string{
		&cfg.AppLoggerLevel,
		&cfg.DatabaseLoggerLevel,
		&cfg.CollectorLoggerLevel,
		&cfg.DownloadsLoggerLevel,
		&cfg.SenderLoggerLevel,
		&cfg.TokensLoggerLevel,
		&cfg.EventLoopLoggerLevel,
	} {
		*l = level
	}
}
