package config

import "time"

// Config holds server configuration values.
type Config struct {
	// ListenAddr is the native line-protocol TCP listener address.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	// BridgeAddr is the HTTP listener hosting the WebSocket bridge.
	BridgeAddr string `mapstructure:"bridge_addr" yaml:"bridge_addr"`
	// DialAddr is the address the bridge dials to reach the native
	// listener. Defaults to ListenAddr with a loopback host.
	DialAddr string `mapstructure:"dial_addr" yaml:"dial_addr"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	AdminSecret  string `mapstructure:"admin_secret" yaml:"admin_secret"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	// HistoryLimit caps how many messages /history returns per query.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// MessageRateLimit is the per-session chat messages allowed per
	// minute. Zero disables rate limiting.
	MessageRateLimit int `mapstructure:"message_rate_limit" yaml:"message_rate_limit"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ListenAddr:        ":6142",
		BridgeAddr:        ":8081",
		DialAddr:          "127.0.0.1:6142",
		DatabasePath:      "linechat.sqlite3",
		AdminSecret:       "",
		LogLevel:          "info",
		HistoryLimit:      100,
		MessageRateLimit:  0,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}
