package enet

import "go.uber.org/zap"

// NewProductionLogger returns the zap.Logger a Host should be constructed
// with outside of tests: JSON-encoded, info level and above. Host defaults
// to zap.NewNop() until WithLogger overrides it, so library use doesn't
// force logging configuration on an embedding application.
func NewProductionLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewDevelopmentLogger returns a human-readable, debug-level logger
// suitable for cmd/enet-host and cmd/enet-client.
func NewDevelopmentLogger() (*zap.Logger, error) {
	return zap.NewDevelopment()
}
