package client

import (
	"time"

	"github.com/dkeye/Stage/internal/config"
)

const (
	DefaultReconnectAttempts = 10
	DefaultReconnectDelay    = 500 * time.Millisecond
	DefaultReconnectDelayMax = 3 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
	defaultWriteWait         = 5 * time.Second
)

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	WriteWait         time.Duration
	Dialer            Dialer
	Now               func() time.Time
}

func OptionsFrom(cfg config.ClientConfig) Options {
	return Options{
		URL:               cfg.URL,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectDelayMax: cfg.ReconnectDelayMax,
		ConnectTimeout:    cfg.ConnectTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = DefaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ReconnectDelayMax < o.ReconnectDelay {
		o.ReconnectDelayMax = DefaultReconnectDelayMax
		if o.ReconnectDelayMax < o.ReconnectDelay {
			o.ReconnectDelayMax = o.ReconnectDelay
		}
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.Dialer == nil {
		o.Dialer = WebSocketDialer{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Backoff is the delay before reconnect attempt n (1-based): base doubled per
// attempt, clamped to max.
func Backoff(n int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
