package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// config is the enet-host YAML configuration file format, loaded with
// --config and overridable per-field by the matching cobra flag.
type config struct {
	Listen             string `yaml:"listen"`
	PeerCount          uint32 `yaml:"peerCount"`
	ChannelLimit       uint32 `yaml:"channelLimit"`
	IncomingBandwidth  uint32 `yaml:"incomingBandwidth"`
	OutgoingBandwidth  uint32 `yaml:"outgoingBandwidth"`
	Checksum           bool   `yaml:"checksum"`
	Compress           bool   `yaml:"compress"`
	LogLevel           string `yaml:"logLevel"`
}

func defaultConfig() config {
	return config{
		Listen:       "0.0.0.0:19091",
		PeerCount:    64,
		ChannelLimit: 8,
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

// buildLogger maps the configured level string onto a development-style
// zap.Logger (console-encoded, matching the other examples pack's CLI
// tooling rather than the JSON production encoder).
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
