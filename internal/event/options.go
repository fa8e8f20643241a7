package event

import (
	"go.uber.org/zap"

	"github.com/dshills/databus/internal/event/dispatch"
)

// Option configures a Bus. Configuration is fixed once New returns.
type Option func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// debug logs every failure seen on "EventBus.error".
	debug bool

	// interceptErrors suppresses the unhandled-failure handler.
	interceptErrors bool

	// log logs each listener pass.
	log bool

	// logData adds the payload to pass logs.
	logData bool

	// defaultFlow is used by Trigger and TriggerAsync.
	defaultFlow Flow

	// logger receives all bus logs.
	logger *zap.Logger

	// loop runs deferred passes. Nil means the bus creates its own.
	loop *dispatch.Loop

	// background starts the bus's own loop on a goroutine.
	background bool

	// unhandled receives failures that were not intercepted.
	unhandled func(*ListenerFailure)
}

// defaultBusConfig returns the default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		defaultFlow: FlowAsync,
		logger:      zap.NewNop(),
	}
}

// WithDebug logs the kind and originating channel of every listener failure.
func WithDebug(enabled bool) Option {
	return func(c *busConfig) {
		c.debug = enabled
	}
}

// WithInterceptErrors keeps failures on "EventBus.error" only and skips the
// unhandled-failure handler.
func WithInterceptErrors(enabled bool) Option {
	return func(c *busConfig) {
		c.interceptErrors = enabled
	}
}

// WithLog logs each listener pass with its channel and subscriber count.
func WithLog(enabled bool) Option {
	return func(c *busConfig) {
		c.log = enabled
	}
}

// WithLogData adds a rendering of the payload to pass logs.
func WithLogData(enabled bool) Option {
	return func(c *busConfig) {
		c.logData = enabled
	}
}

// WithDefaultFlow sets the flow used when a trigger does not force sync.
func WithDefaultFlow(f Flow) Option {
	return func(c *busConfig) {
		c.defaultFlow = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLoop runs deferred passes on l. The caller owns l and decides whether
// it is drained cooperatively or started in the background.
func WithLoop(l *dispatch.Loop) Option {
	return func(c *busConfig) {
		c.loop = l
	}
}

// WithBackground runs the loop the bus creates on its own goroutine, so
// deferred passes need no Drain. Listener execution stays serial: sync
// passes wait for a running deferred unit. Ignored with WithLoop.
func WithBackground() Option {
	return func(c *busConfig) {
		c.background = true
	}
}

// WithUnhandledHandler sets the handler for failures that were not
// intercepted. It runs in its own loop unit.
func WithUnhandledHandler(h func(*ListenerFailure)) Option {
	return func(c *busConfig) {
		c.unhandled = h
	}
}
