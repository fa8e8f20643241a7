package config

import (
	"github.com/dshills/databus/internal/event"
)

// Config is the file form of the bus options.
type Config struct {
	// Debug logs every listener failure.
	Debug bool `toml:"debug" yaml:"debug"`

	// InterceptErrors keeps failures on "EventBus.error" only.
	InterceptErrors bool `toml:"intercept_errors" yaml:"intercept_errors"`

	// Log logs each listener pass.
	Log bool `toml:"log" yaml:"log"`

	// LogData adds payloads to pass logs.
	LogData bool `toml:"log_data" yaml:"log_data"`

	// Flow is "sync" or "async". Empty means async.
	Flow string `toml:"flow" yaml:"flow"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{Flow: event.FlowAsync.String()}
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Flow == "" {
		return nil
	}
	if _, err := event.ParseFlow(c.Flow); err != nil {
		return &ValidationError{Field: "flow", Value: c.Flow, Msg: "must be sync or async"}
	}
	return nil
}

// DefaultFlow returns the parsed flow, async when unset or invalid.
func (c Config) DefaultFlow() event.Flow {
	if c.Flow == "" {
		return event.FlowAsync
	}
	f, err := event.ParseFlow(c.Flow)
	if err != nil {
		return event.FlowAsync
	}
	return f
}

// Options converts the configuration to bus options.
func (c Config) Options() []event.Option {
	return []event.Option{
		event.WithDebug(c.Debug),
		event.WithInterceptErrors(c.InterceptErrors),
		event.WithLog(c.Log),
		event.WithLogData(c.LogData),
		event.WithDefaultFlow(c.DefaultFlow()),
	}
}
