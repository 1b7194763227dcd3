package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// config is the enet-client YAML configuration file format, loaded with
// --config and overridable per-field by the matching cobra flag.
type config struct {
	Server       string `yaml:"server"`
	ChannelCount uint32 `yaml:"channelCount"`
	Channel      uint8  `yaml:"channel"`
	Message      string `yaml:"message"`
	Interval     uint32 `yaml:"intervalMillis"`
	LogLevel     string `yaml:"logLevel"`
}

func defaultConfig() config {
	return config{
		Server:       "127.0.0.1:19091",
		ChannelCount: 1,
		Channel:      0,
		Message:      "hello",
		Interval:     1000,
		LogLevel:     "info",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %q", path)
	}
	return cfg, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
